// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the geocoders over a JSON HTTP API.
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/geocoords/geocoding"
	"github.com/jcodagnone/geocoords/journal"
	"github.com/jcodagnone/geocoords/spatial"
	"go.uber.org/zap"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
	// maxBatchAddresses accepted by a single batch request.
	maxBatchAddresses = 1000
)

// Options are the dependencies of a Server. Only Registry is required, the
// routes of a nil dependency answer 501.
type Options struct {
	Registry *geocoding.Registry
	Elevator geocoding.Elevator
	ArcGIS   geocoding.AuthenticatedGeocoder
	Journal  journal.Repository
	Logger   *zap.Logger
}

// Server serves the geocoding API.
type Server struct {
	registry *geocoding.Registry
	elevator geocoding.Elevator
	arcgis   geocoding.AuthenticatedGeocoder
	repo     journal.Repository
	recorder *journal.Recorder
	logger   *zap.Logger
}

// NewServer creates a server for opts.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		registry: opts.Registry,
		elevator: opts.Elevator,
		arcgis:   opts.ArcGIS,
		repo:     opts.Journal,
		logger:   logger,
	}

	if opts.Journal != nil {
		s.recorder = journal.NewRecorder(opts.Journal, logger)
	}

	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())

	r.GET("/api/providers", s.listProviders)
	r.GET("/api/geocode/:provider", s.geocode)
	r.GET("/api/google/elevation", s.elevation)
	r.GET("/api/google/altitude", s.altitude)
	r.GET("/api/arcgis/geocode", s.arcgisGeocode)
	r.POST("/api/arcgis/batch", s.arcgisBatch)
	r.GET("/api/compare", s.compare)
	r.GET("/api/journal", s.listJournal)

	return r
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("listening", zap.String("addr", addr), zap.Strings("providers", s.registry.Names()))

	return s.Router().Run(addr)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		logger.Info("request",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func notEnabled(ctx *gin.Context, feature string) {
	ctx.JSON(http.StatusNotImplemented, gin.H{"error": feature + " is not configured"})
}

// requiredQuery returns the trimmed query parameter, answering 400 when it
// is missing.
func requiredQuery(ctx *gin.Context, name string) (string, bool) {
	v := strings.TrimSpace(ctx.Query(name))
	if v == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": name + " query parameter is required"})

		return "", false
	}

	return v, true
}

func (s *Server) listProviders(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"providers": s.registry.Names(),
		"elevation": s.elevator != nil,
		"arcgis":    s.arcgis != nil,
		"journal":   s.repo != nil,
	})
}

func (s *Server) geocode(ctx *gin.Context) {
	g, err := s.registry.Get(ctx.Param("provider"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

		return
	}

	address, ok := requiredQuery(ctx, "address")
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, g.Geocode(ctx.Request.Context(), address))
}

func parseCoordinate(ctx *gin.Context, name string, limit float64) (float64, bool) {
	raw, ok := requiredQuery(ctx, name)
	if !ok {
		return 0, false
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < -limit || v > limit {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " parameter"})

		return 0, false
	}

	return v, true
}

func (s *Server) elevation(ctx *gin.Context) {
	if s.elevator == nil {
		notEnabled(ctx, "google")

		return
	}

	lat, ok := parseCoordinate(ctx, "lat", 90)
	if !ok {
		return
	}

	lng, ok := parseCoordinate(ctx, "lng", 180)
	if !ok {
		return
	}

	env := s.elevator.Elevation(ctx.Request.Context(), lat, lng)
	s.recorder.Elevation("google", journal.OpElevation, spatial.Point{Lat: lat, Lng: lng}.String(), env)

	ctx.JSON(http.StatusOK, env)
}

func (s *Server) altitude(ctx *gin.Context) {
	if s.elevator == nil {
		notEnabled(ctx, "google")

		return
	}

	address, ok := requiredQuery(ctx, "address")
	if !ok {
		return
	}

	env := s.elevator.GeocodeWithElevation(ctx.Request.Context(), address)
	s.recorder.Elevation("google", journal.OpGeocodeWithElevation, address, env)

	ctx.JSON(http.StatusOK, env)
}

func (s *Server) arcgisGeocode(ctx *gin.Context) {
	if s.arcgis == nil {
		notEnabled(ctx, "arcgis login")

		return
	}

	address, ok := requiredQuery(ctx, "address")
	if !ok {
		return
	}

	env := s.arcgis.GeocodeAuthenticated(ctx.Request.Context(), address)
	s.recorder.Match("arcgis", address, env)

	ctx.JSON(http.StatusOK, env)
}

type batchRequest struct {
	Addresses []string `json:"addresses" binding:"required"`
}

func (s *Server) arcgisBatch(ctx *gin.Context) {
	if s.arcgis == nil {
		notEnabled(ctx, "arcgis login")

		return
	}

	var req batchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})

		return
	}

	if len(req.Addresses) > maxBatchAddresses {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "too many addresses, the limit is " + strconv.Itoa(maxBatchAddresses)})

		return
	}

	env := s.arcgis.BatchGeocodeAuthenticated(ctx.Request.Context(), req.Addresses)
	s.recorder.Batch("arcgis", req.Addresses, env)

	ctx.JSON(http.StatusOK, env)
}

func (s *Server) compare(ctx *gin.Context) {
	address, ok := requiredQuery(ctx, "address")
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, s.registry.Compare(ctx.Request.Context(), address))
}

func (s *Server) listJournal(ctx *gin.Context) {
	if s.repo == nil {
		notEnabled(ctx, "journal")

		return
	}

	limit := defaultJournalLimit
	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxJournalLimit {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})

			return
		}

		limit = n
	}

	offset := 0
	if v := ctx.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset parameter"})

			return
		}

		offset = n
	}

	var provider *string
	if v := ctx.Query("provider"); v != "" {
		provider = &v
	}

	lookups, err := s.repo.List(provider, limit, offset)
	if err != nil {
		s.logger.Error("listing journal", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list lookups"})

		return
	}

	total, err := s.repo.Count()
	if err != nil {
		s.logger.Error("counting journal", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count lookups"})

		return
	}

	if lookups == nil {
		lookups = []*journal.Lookup{}
	}

	ctx.JSON(http.StatusOK, gin.H{"total": total, "lookups": lookups})
}
