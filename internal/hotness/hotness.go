// Package hotness tracks decaying per-cell demand scores.
package hotness

type Interface interface {
	Inc(cell string)
	Score(cell string) float64
	Reset(cells ...string)
}

// Entry is one cell with its score at read time.
type Entry struct {
	Cell  string
	Score float64
}

// Ranker lists the highest scoring cells, best first.
type Ranker interface {
	TopN(n int) []Entry
}
