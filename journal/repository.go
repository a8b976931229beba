// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal keeps a DuckDB log of every lookup sent to the providers.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jcodagnone/geocoords/spatial"
	"github.com/jcodagnone/geocoords/utils/textutils"
)

// Lookup is one provider answer.
type Lookup struct {
	ID              uuid.UUID      `json:"id"`
	Provider        string         `json:"provider"`
	Operation       string         `json:"operation"`
	Query           string         `json:"query"`
	NormalizedQuery string         `json:"normalized_query"`
	Status          bool           `json:"status"`
	Message         *string        `json:"message"`
	Point           *spatial.Point `json:"point"`
	Altitude        *float64       `json:"altitude"`
	H3Res9          int64          `json:"-"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (l *Lookup) computeH3() error {
	if l.Point == nil {
		l.H3Res9 = 0

		return nil
	}

	cell, err := l.Point.Cell(spatial.DefaultCellResolution)
	if err != nil {
		return err
	}

	l.H3Res9 = int64(cell)

	return nil
}

// ProviderStats summarizes the lookups of one provider.
type ProviderStats struct {
	Provider  string `json:"provider"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// Repository handles persistence of lookups.
type Repository interface {
	// CreateSchema creates the lookups table
	CreateSchema() error

	// Record stores a lookup, filling in the ID, timestamp and derived
	// fields when they are missing
	Record(l *Lookup) error

	// List returns lookups newest first, optionally filtered by provider
	List(provider *string, limit, offset int) ([]*Lookup, error)

	// Count returns the total number of lookups
	Count() (int, error)

	// Stats returns per provider outcome counts, ordered by provider
	Stats() ([]*ProviderStats, error)
}

type sqlRepository struct {
	db *sql.DB
}

// NewRepository creates a new lookup repository.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS lookups (
			id VARCHAR PRIMARY KEY,
			provider VARCHAR NOT NULL,
			operation VARCHAR NOT NULL,
			query VARCHAR NOT NULL,
			normalized_query VARCHAR NOT NULL,
			status BOOLEAN NOT NULL,
			message VARCHAR,
			point VARCHAR,
			altitude DOUBLE,
			h3_res9 UBIGINT,
			created_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS lookups_normalized_query_idx ON lookups (normalized_query);
	`)

	return err
}

func (r *sqlRepository) Record(l *Lookup) error {
	if l.Provider == "" || l.Operation == "" {
		return errors.New("provider and operation can't be empty")
	}

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	if l.NormalizedQuery == "" {
		l.NormalizedQuery = textutils.NormalizeQuery(l.Query)
	}

	if err := l.computeH3(); err != nil {
		return err
	}

	var point, h3Res9 any
	if l.Point != nil {
		point = *l.Point
		h3Res9 = l.H3Res9
	}

	_, err := r.db.Exec(`
		INSERT INTO lookups(
			id, provider, operation, query, normalized_query,
			status, message, point, altitude, h3_res9, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID.String(),
		l.Provider,
		l.Operation,
		l.Query,
		l.NormalizedQuery,
		l.Status,
		l.Message,
		point,
		l.Altitude,
		h3Res9,
		l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting lookup: %w", err)
	}

	return nil
}

const baseSelect = `
	SELECT id, provider, operation, query, normalized_query,
	       status, message, point, altitude, h3_res9, created_at
	FROM lookups
`

func (r *sqlRepository) List(provider *string, limit, offset int) ([]*Lookup, error) {
	query := baseSelect

	args := []any{}

	if provider != nil {
		query += " WHERE provider = ?"

		args = append(args, *provider)
	}

	query += " ORDER BY created_at DESC, id"

	if limit > 0 {
		query += " LIMIT ? OFFSET ?"

		args = append(args, limit, offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lookups []*Lookup

	for rows.Next() {
		l := &Lookup{}

		var (
			message  sql.NullString
			point    sql.Null[spatial.Point]
			altitude sql.NullFloat64
			h3Res9   sql.NullInt64
		)

		err := rows.Scan(
			&l.ID, &l.Provider, &l.Operation, &l.Query, &l.NormalizedQuery,
			&l.Status, &message, &point, &altitude, &h3Res9, &l.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if message.Valid {
			l.Message = &message.String
		}

		if point.Valid {
			l.Point = &point.V
		}

		if altitude.Valid {
			l.Altitude = &altitude.Float64
		}

		if h3Res9.Valid {
			l.H3Res9 = h3Res9.Int64
		}

		lookups = append(lookups, l)
	}

	return lookups, rows.Err()
}

func (r *sqlRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM lookups",
	).Scan(&count)

	return count, err
}

func (r *sqlRepository) Stats() ([]*ProviderStats, error) {
	rows, err := r.db.Query(`
		SELECT provider,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status),
		       COUNT(*) FILTER (WHERE NOT status)
		FROM lookups
		GROUP BY provider
		ORDER BY provider
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*ProviderStats

	for rows.Next() {
		s := &ProviderStats{}
		if err := rows.Scan(&s.Provider, &s.Total, &s.Succeeded, &s.Failed); err != nil {
			return nil, err
		}

		stats = append(stats, s)
	}

	return stats, rows.Err()
}
