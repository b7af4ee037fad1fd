package reconcile

import "github.com/cleared-dev/releve/internal/model"

// pool is the working set of future rows. Rows keep their fetch order and
// are marked as taken instead of being removed, so a search always sees the
// remaining rows in their original order.
type pool struct {
	rows  []*model.Transaction
	taken []bool
	left  int
}

func newPool(rows []*model.Transaction) *pool {
	return &pool{rows: rows, taken: make([]bool, len(rows)), left: len(rows)}
}

// take marks and returns the first remaining row accepted by match.
func (p *pool) take(match func(*model.Transaction) bool) (*model.Transaction, bool) {
	for i, r := range p.rows {
		if p.taken[i] || !match(r) {
			continue
		}
		p.taken[i] = true
		p.left--
		return r, true
	}
	return nil, false
}

func (p *pool) len() int { return p.left }

// remaining returns the rows never taken, in fetch order.
func (p *pool) remaining() []*model.Transaction {
	out := make([]*model.Transaction, 0, p.left)
	for i, r := range p.rows {
		if !p.taken[i] {
			out = append(out, r)
		}
	}
	return out
}
