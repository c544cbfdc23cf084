package coverage

import (
	"fmt"
	"math"
	"strings"

	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
)

// Input is the unvalidated location and filter set of a request.
type Input struct {
	Latitude  *float64
	Longitude *float64
	Address   *string
	Mediums   []string
	Sort      string
}

// Validate turns raw input into a canonical Lookup. Coordinates win over an
// address when both are given; the address is then only echoed. The address
// is whitespace-collapsed and the point rounded to key precision, so the
// store query, the echo and the cache key all see the same values.
func Validate(in Input) (model.Lookup, error) {
	lat, hasLat := finite(in.Latitude)
	lon, hasLon := finite(in.Longitude)
	addr := ""
	if in.Address != nil {
		addr = model.CollapseSpace(*in.Address)
	}

	sort := strings.ToLower(strings.TrimSpace(in.Sort))
	if sort != "" && sort != model.SortPrice {
		return model.Lookup{}, fmt.Errorf("%w: unsupported sort %q", ErrInvalidInput, in.Sort)
	}

	l := model.Lookup{
		Address: addr,
		Mediums: model.NormalizeMediums(in.Mediums),
		Sort:    sort,
	}

	switch {
	case hasLat && hasLon:
		if lat < -90 || lat > 90 {
			return model.Lookup{}, fmt.Errorf("%w: latitude must be in [-90,90]", ErrInvalidInput)
		}
		if lon < -180 || lon > 180 {
			return model.Lookup{}, fmt.Errorf("%w: longitude must be in [-180,180]", ErrInvalidInput)
		}
		l.Point = &model.Point{Lat: model.RoundCoord(lat), Lon: model.RoundCoord(lon)}
	case hasLat != hasLon:
		return model.Lookup{}, fmt.Errorf("%w: latitude and longitude must be given together", ErrInvalidInput)
	case addr == "":
		return model.Lookup{}, fmt.Errorf("%w: missing location", ErrInvalidInput)
	}
	return l, nil
}

func finite(f *float64) (float64, bool) {
	if f == nil || math.IsNaN(*f) || math.IsInf(*f, 0) {
		return 0, false
	}
	return *f, true
}
