// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoPoints is returned when there is nothing to summarize.
var ErrNoPoints = errors.New("spatial: no points")

// Spread describes how far apart a set of answers for the same place are.
type Spread struct {
	Centroid Point `json:"centroid"`
	// Distances are measured from every point to the centroid.
	MeanDistanceMeters float64 `json:"mean_distance_m"`
	StdDevMeters       float64 `json:"stddev_m"`
	MaxDistanceMeters  float64 `json:"max_distance_m"`
}

// Summarize computes the centroid of points and the spread of their
// distances to it. The centroid is the plain mean of the coordinates, which
// is good enough for answers that are a few kilometers apart.
func Summarize(points []Point) (Spread, error) {
	if len(points) == 0 {
		return Spread{}, ErrNoPoints
	}

	if len(points) == 1 {
		return Spread{Centroid: points[0]}, nil
	}

	lats := make([]float64, len(points))
	lngs := make([]float64, len(points))

	for i, p := range points {
		lats[i] = p.Lat
		lngs[i] = p.Lng
	}

	centroid := Point{Lat: stat.Mean(lats, nil), Lng: stat.Mean(lngs, nil)}

	distances := make([]float64, len(points))
	for i := range points {
		distances[i] = centroid.HaversineDistance(&points[i])
	}

	mean, std := stat.PopMeanStdDev(distances, nil)

	return Spread{
		Centroid:           centroid,
		MeanDistanceMeters: mean,
		StdDevMeters:       std,
		MaxDistanceMeters:  floats.Max(distances),
	}, nil
}
