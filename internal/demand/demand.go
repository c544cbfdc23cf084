// Package demand tracks where people look for coverage and find none.
// Not-covered point lookups are bucketed into H3 cells whose scores decay
// over time, so the hottest cells show recent unmet demand.
package demand

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/core/router"
	"github.com/mohammed-shakir/coverage-cache/internal/hotness"
	"github.com/mohammed-shakir/coverage-cache/internal/mapper"
)

const (
	DefaultLimit = 20
	MaxLimit     = 500

	// cells below this score carry no useful signal
	pruneBelow = 0.01
)

type Scorer interface {
	hotness.Interface
	hotness.Ranker
	Prune(minScore float64) int
}

type Tracker struct {
	mapr   mapper.Interface
	scores Scorer
	res    int
	logger *slog.Logger
}

func New(m mapper.Interface, scores Scorer, res int, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{mapr: m, scores: scores, res: res, logger: logger}
}

// ObserveLookup counts not-covered point lookups. Address lookups have no
// location to bucket and are ignored.
func (t *Tracker) ObserveLookup(ctx context.Context, l model.Lookup, covered bool, _ string) {
	if covered || l.Point == nil {
		return
	}
	cell, err := t.mapr.CellForPoint(*l.Point, t.res)
	if err != nil {
		t.logger.DebugContext(ctx, "demand: h3 mapping failed", "err", err)
		return
	}
	t.scores.Inc(cell)
}

type Cell struct {
	Cell  string  `json:"cell"`
	Score float64 `json:"score"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

// Top returns up to limit cells at resolution res, hottest first. A res
// coarser than the tracked one sums child scores into their parents.
func (t *Tracker) Top(limit, res int) ([]Cell, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if res < 0 || res > t.res {
		res = t.res
	}

	var entries []hotness.Entry
	if res == t.res {
		entries = t.scores.TopN(limit)
	} else {
		var err error
		if entries, err = t.rollUp(res, limit); err != nil {
			return nil, err
		}
	}

	out := make([]Cell, 0, len(entries))
	for _, e := range entries {
		c, err := t.mapr.CellCenter(e.Cell)
		if err != nil {
			return nil, err
		}
		out = append(out, Cell{Cell: e.Cell, Score: e.Score, Lat: c.Lat, Lng: c.Lon})
	}
	return out, nil
}

func (t *Tracker) rollUp(res, limit int) ([]hotness.Entry, error) {
	all := t.scores.TopN(math.MaxInt)
	idx := make(map[string]int)
	var parents []hotness.Entry
	for _, e := range all {
		p, err := t.mapr.ToParent(e.Cell, res)
		if err != nil {
			return nil, err
		}
		i, ok := idx[p]
		if !ok {
			idx[p] = len(parents)
			parents = append(parents, hotness.Entry{Cell: p, Score: e.Score})
			continue
		}
		parents[i].Score += e.Score
	}
	slices.SortFunc(parents, func(a, b hotness.Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Cell, b.Cell)
	})
	if len(parents) > limit {
		parents = parents[:limit]
	}
	return parents, nil
}

// Run prunes cold cells every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	tk := time.NewTicker(every)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if n := t.scores.Prune(pruneBelow); n > 0 {
				t.logger.Debug("demand: pruned cold cells", "removed", n)
			}
		}
	}
}

type topResponse struct {
	Res   int    `json:"res"`
	Cells []Cell `json:"cells"`
}

// Handler serves GET /demand/uncovered?limit=N[&res=R].
func (t *Tracker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := DefaultLimit
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > MaxLimit {
				router.WriteError(w, http.StatusBadRequest, "limit must be an integer in [1,"+strconv.Itoa(MaxLimit)+"]")
				return
			}
			limit = n
		}
		res := t.res
		if s := q.Get("res"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 || n > t.res {
				router.WriteError(w, http.StatusBadRequest, "res must be an integer in [0,"+strconv.Itoa(t.res)+"]")
				return
			}
			res = n
		}

		cells, err := t.Top(limit, res)
		if err != nil {
			t.logger.WarnContext(r.Context(), "demand: top cells failed", "err", err)
			router.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		router.WriteJSON(w, http.StatusOK, topResponse{Res: res, Cells: cells})
	}
}
