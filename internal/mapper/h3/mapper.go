package h3mapper

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/mapper"
)

type Mapper struct{}

var _ mapper.Interface = (*Mapper)(nil)

func New() *Mapper { return &Mapper{} }

// CellForPoint returns the cell containing p at res.
func (m *Mapper) CellForPoint(p model.Point, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return "", fmt.Errorf("point %s out of range", p)
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell for %s: %w", p, err)
	}
	return c.String(), nil
}

// CellCenter returns the centroid of cell.
func (m *Mapper) CellCenter(cell string) (model.Point, error) {
	c, err := parseCell(cell)
	if err != nil {
		return model.Point{}, err
	}
	ll, err := c.LatLng()
	if err != nil {
		return model.Point{}, fmt.Errorf("h3 centroid: %w", err)
	}
	return model.Point{Lat: ll.Lat, Lon: ll.Lng}, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func parseCell(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", cell)
	}
	return c, nil
}
