// Package mapper converts between coordinates and H3 cells.
package mapper

import (
	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
)

type Interface interface {
	CellForPoint(p model.Point, res int) (string, error)
	CellCenter(cell string) (model.Point, error)
	ToParent(cell string, parentRes int) (string, error)
}
