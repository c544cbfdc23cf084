// Package metricswrap exports demand tracker activity as Prometheus metrics.
package metricswrap

import (
	"fmt"
	"log/slog"

	xx "github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/coverage-cache/internal/core/observability"
	"github.com/mohammed-shakir/coverage-cache/internal/hotness"
)

type Sizer interface{ Size() int }

type Pruner interface{ Prune(minScore float64) int }

// Tracker is what the wrapper needs from the inner model.
type Tracker interface {
	hotness.Interface
	hotness.Ranker
}

type WithMetrics struct {
	inner     Tracker
	logger    *slog.Logger
	threshold float64
	logSample float64
}

type Options struct {
	// Threshold logs cells whose score reaches it; 0 disables.
	Threshold float64
	// LogSample is the fraction of above-threshold increments that log.
	LogSample float64
}

func New(inner Tracker, logger *slog.Logger, opts Options) *WithMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &WithMetrics{inner: inner, logger: logger, threshold: opts.Threshold, logSample: opts.LogSample}
}

func (w *WithMetrics) Inc(cell string) {
	w.inner.Inc(cell)
	score := w.inner.Score(cell)
	observability.ObserveDemandScore(score)

	if w.threshold > 0 && score >= w.threshold && shouldLog(w.logSample, cell) {
		w.logger.Info("uncovered demand above threshold",
			"event", "demand_threshold",
			"score", score,
			"cell_hash", fmt.Sprintf("%08x", xx.Sum64String(cell)))
	}
	w.reportSize()
}

func (w *WithMetrics) Score(cell string) float64 {
	return w.inner.Score(cell)
}

func (w *WithMetrics) Reset(cells ...string) {
	w.inner.Reset(cells...)
	w.reportSize()
}

func (w *WithMetrics) TopN(n int) []hotness.Entry {
	return w.inner.TopN(n)
}

// Prune forwards to the inner tracker when it supports pruning.
func (w *WithMetrics) Prune(minScore float64) int {
	p, ok := w.inner.(Pruner)
	if !ok {
		return 0
	}
	n := p.Prune(minScore)
	w.reportSize()
	return n
}

func (w *WithMetrics) reportSize() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetDemandCells(s.Size())
	}
}

func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000 // 0.01 => 100/10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	h := xx.Sum64String(key)
	return (h % denom) < threshold
}
