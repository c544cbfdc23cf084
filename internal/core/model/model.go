// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

const StatusLive = "live"

const (
	MessageCovered    = "Yes, this address is covered."
	MessageNotCovered = "No, this address is not covered."
)

// SortPrice orders offers by ascending price instead of store order.
const SortPrice = "price"

type Point struct {
	Lat float64
	Lon float64
}

// String representation with the fixed precision used in cache keys
func (p Point) String() string {
	return fixed6(p.Lat) + "," + fixed6(p.Lon)
}

// RoundCoord rounds to the 6 decimals carried by cache keys.
func RoundCoord(f float64) float64 {
	r := math.Round(f*1e6) / 1e6
	if r == 0 {
		return 0
	}
	return r
}

func fixed6(f float64) string {
	s := fmt.Sprintf("%.6f", f)
	if s == "-0.000000" {
		return "0.000000"
	}
	return s
}

// Lookup is a validated coverage request. Point is nil in address mode.
type Lookup struct {
	Point   *Point
	Address string
	Mediums []string
	Sort    string
}

func (l Lookup) ByAddress() bool { return l.Point == nil }

// CoverageRecord is one row returned by the geospatial store.
type CoverageRecord struct {
	Provider string
	Product  string
	Status   string
	Medium   string
	Price    *float64
}

func (r CoverageRecord) Live() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), StatusLive)
}

type ProviderOffer struct {
	Provider string   `json:"provider"`
	Product  string   `json:"product"`
	Price    *float64 `json:"price,omitempty"`
	Status   string   `json:"status"`
}

type CoverageResponse struct {
	Covered   bool            `json:"covered"`
	Message   string          `json:"message"`
	Address   *string         `json:"address"`
	Latitude  *float64        `json:"latitude,omitempty"`
	Longitude *float64        `json:"longitude,omitempty"`
	Offers    []ProviderOffer `json:"providers"`
}

// NormalizeMediums trims, lower-cases, de-duplicates and sorts medium filters.
func NormalizeMediums(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return out
}

// CollapseSpace trims s and turns every run of ASCII whitespace into one space.
func CollapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}
