// Package coverage resolves whether a location is served by any provider and
// which product each provider offers there most cheaply.
package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/core/observability"
)

// Store is the geospatial collaborator. FindCoverage must issue a single
// containment query and return rows in a stable order.
type Store interface {
	FindCoverage(ctx context.Context, l model.Lookup) ([]model.CoverageRecord, error)
}

type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve validates raw input and resolves it.
func (r *Resolver) Resolve(ctx context.Context, in Input) (model.CoverageResponse, error) {
	l, err := Validate(in)
	if err != nil {
		return model.CoverageResponse{}, err
	}
	return r.ResolveLookup(ctx, l)
}

// ResolveLookup runs one store query for an already validated lookup and
// shapes the response. Malformed lookups are rejected without querying.
func (r *Resolver) ResolveLookup(ctx context.Context, l model.Lookup) (model.CoverageResponse, error) {
	if err := checkLookup(l); err != nil {
		return model.CoverageResponse{}, err
	}

	start := time.Now()
	recs, err := r.store.FindCoverage(ctx, l)
	if err != nil {
		r.logger.WarnContext(ctx, "coverage store query failed",
			"by_address", l.ByAddress(), "err", err, "dur", time.Since(start).String())
		return model.CoverageResponse{}, fmt.Errorf("%w: %w", ErrStore, err)
	}

	offers := CheapestPerProvider(recs)
	if l.Sort == model.SortPrice {
		SortByPrice(offers)
	}
	resp := Shape(l, offers)

	observability.IncCoverageResult(resp.Covered, l.ByAddress())
	r.logger.DebugContext(ctx, "coverage resolved",
		"covered", resp.Covered,
		"rows", len(recs),
		"providers", len(offers),
		"dur", time.Since(start).String())
	return resp, nil
}

func checkLookup(l model.Lookup) error {
	if l.Point == nil {
		if l.Address == "" {
			return fmt.Errorf("%w: missing location", ErrInvalidInput)
		}
		return nil
	}
	p := *l.Point
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	return nil
}

// CheapestPerProvider keeps live records only and reduces them to one offer
// per provider, in order of each provider's first live record.
//
// Replacement happens only when a record is strictly better:
//   - a priced record beats an unpriced one
//   - a lower price beats a higher one
//   - on equal price (or both unpriced) the lexicographically smaller
//     product name wins; equal names keep the earlier record
func CheapestPerProvider(recs []model.CoverageRecord) []model.ProviderOffer {
	idx := make(map[string]int)
	offers := make([]model.ProviderOffer, 0)

	for _, rec := range recs {
		if !rec.Live() {
			continue
		}
		cand := offerFrom(rec)
		i, ok := idx[rec.Provider]
		if !ok {
			idx[rec.Provider] = len(offers)
			offers = append(offers, cand)
			continue
		}
		if cheaper(cand, offers[i]) {
			offers[i] = cand
		}
	}
	return offers
}

func offerFrom(rec model.CoverageRecord) model.ProviderOffer {
	o := model.ProviderOffer{
		Provider: rec.Provider,
		Product:  rec.Product,
		Status:   rec.Status,
	}
	if rec.Price != nil {
		p := *rec.Price
		o.Price = &p
	}
	return o
}

func cheaper(a, b model.ProviderOffer) bool {
	switch {
	case a.Price != nil && b.Price == nil:
		return true
	case a.Price == nil && b.Price != nil:
		return false
	case a.Price != nil && *a.Price != *b.Price:
		return *a.Price < *b.Price
	}
	return a.Product < b.Product
}

// SortByPrice orders offers ascending by price, unpriced last, keeping the
// relative order of equal prices.
func SortByPrice(offers []model.ProviderOffer) {
	slices.SortStableFunc(offers, func(a, b model.ProviderOffer) int {
		switch {
		case a.Price == nil && b.Price == nil:
			return 0
		case a.Price == nil:
			return 1
		case b.Price == nil:
			return -1
		case *a.Price < *b.Price:
			return -1
		case *a.Price > *b.Price:
			return 1
		}
		return 0
	})
}

// Shape builds the response payload for a lookup and its offers.
func Shape(l model.Lookup, offers []model.ProviderOffer) model.CoverageResponse {
	resp := model.CoverageResponse{
		Covered: len(offers) > 0,
		Message: model.MessageNotCovered,
		Offers:  []model.ProviderOffer{},
	}
	if resp.Covered {
		resp.Message = model.MessageCovered
		resp.Offers = offers
	}
	if l.Address != "" {
		a := l.Address
		resp.Address = &a
	}
	if l.Point != nil {
		lat, lon := l.Point.Lat, l.Point.Lon
		resp.Latitude = &lat
		resp.Longitude = &lon
	}
	return resp
}
