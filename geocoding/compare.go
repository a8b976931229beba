// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"

	"github.com/jcodagnone/geocoords/spatial"
)

// AgreementMeters is how close two answers must be to count as the same
// place.
const AgreementMeters = 500.0

// Comparison is the answer of every provider for one address.
type Comparison struct {
	Address string           `json:"address"`
	Results []ProviderResult `json:"results"`
	// Spread is nil when no provider found the address.
	Spread *spatial.Spread `json:"spread"`
	// Agreement lists the providers of the largest group of answers within
	// AgreementMeters of each other, nil unless at least two agree.
	Agreement []string `json:"agreement"`
}

// Compare asks every provider and measures how far apart the answers are.
func (r *Registry) Compare(ctx context.Context, address string) Comparison {
	return NewComparison(address, r.GeocodeAll(ctx, address))
}

// NewComparison summarizes provider results for address.
func NewComparison(address string, results []ProviderResult) Comparison {
	c := Comparison{Address: address, Results: results}

	var (
		points    []spatial.Point
		providers []string
	)

	for _, res := range results {
		if res.Envelope.Status {
			points = append(points, res.Envelope.Result.Point())
			providers = append(providers, res.Provider)
		}
	}

	// the only possible error is an empty set
	if spread, err := spatial.Summarize(points); err == nil {
		c.Spread = &spread
	}

	if clusters := spatial.Cluster(points, AgreementMeters); len(clusters) > 0 && len(clusters[0]) > 1 {
		for _, i := range clusters[0] {
			c.Agreement = append(c.Agreement, providers[i])
		}
	}

	return c
}
