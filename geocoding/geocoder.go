// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Geocoder interface for different geocoding providers.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, address string) Envelope[Coordinate]
}

// Elevator looks up altitudes.
type Elevator interface {
	Elevation(ctx context.Context, lat, lng float64) Envelope[Elevation]
	GeocodeWithElevation(ctx context.Context, address string) Envelope[Elevation]
}

// AuthenticatedGeocoder geocodes with an account login.
type AuthenticatedGeocoder interface {
	GeocodeAuthenticated(ctx context.Context, address string) Envelope[Match]
	BatchGeocodeAuthenticated(ctx context.Context, addresses []string) Envelope[BatchResult]
}

var (
	_ Geocoder              = (*GoogleGeocoder)(nil)
	_ Geocoder              = (*HereGeocoder)(nil)
	_ Geocoder              = (*ArcGISGeocoder)(nil)
	_ Elevator              = (*GoogleGeocoder)(nil)
	_ AuthenticatedGeocoder = (*ArcGISGeocoder)(nil)
)

// ProviderResult is the answer of one provider.
type ProviderResult struct {
	Provider string               `json:"provider"`
	Envelope Envelope[Coordinate] `json:"envelope"`
}

// Registry keeps geocoders by name, in registration order.
type Registry struct {
	geocoders []Geocoder
	byName    map[string]Geocoder
}

// NewRegistry creates a registry holding geocoders.
func NewRegistry(geocoders ...Geocoder) *Registry {
	r := &Registry{byName: make(map[string]Geocoder)}
	for _, g := range geocoders {
		r.Register(g)
	}

	return r
}

// Register adds g, replacing any geocoder with the same name.
func (r *Registry) Register(g Geocoder) {
	name := strings.ToLower(g.Name())
	if _, ok := r.byName[name]; ok {
		for i, existing := range r.geocoders {
			if strings.EqualFold(existing.Name(), name) {
				r.geocoders[i] = g
			}
		}
	} else {
		r.geocoders = append(r.geocoders, g)
	}

	r.byName[name] = g
}

// Get returns the geocoder registered under name.
func (r *Registry) Get(name string) (Geocoder, error) {
	g, ok := r.byName[strings.ToLower(name)]
	if !ok {
		names := r.Names()
		sort.Strings(names)

		return nil, fmt.Errorf("unknown provider %q, available: %s", name, strings.Join(names, ", "))
	}

	return g, nil
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.geocoders))
	for i, g := range r.geocoders {
		names[i] = g.Name()
	}

	return names
}

// GeocodeAll asks every provider, one after the other.
func (r *Registry) GeocodeAll(ctx context.Context, address string) []ProviderResult {
	results := make([]ProviderResult, 0, len(r.geocoders))
	for _, g := range r.geocoders {
		results = append(results, ProviderResult{Provider: g.Name(), Envelope: g.Geocode(ctx, address)})
	}

	return results
}
