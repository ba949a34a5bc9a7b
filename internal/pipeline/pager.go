package pipeline

import (
	"sync"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

// BatchSize is the number of groups revealed per page.
const BatchSize = 10

// Pager reveals a result in batches. A closed pager yields nothing, so a pager replaced
// by a newer result can never append stale groups.
type Pager struct {
	mu     sync.Mutex
	groups []domain.AggregateGroup
	shown  int
	closed bool
}

// NewPager pages over groups.
func NewPager(groups []domain.AggregateGroup) *Pager {
	return &Pager{groups: groups}
}

// Next returns the next batch, empty when exhausted or closed.
func (p *Pager) Next() []domain.AggregateGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.shown >= len(p.groups) {
		return []domain.AggregateGroup{}
	}
	end := p.shown + BatchSize
	if end > len(p.groups) {
		end = len(p.groups)
	}
	batch := p.groups[p.shown:end]
	p.shown = end
	return batch
}

// Skip advances past n groups without returning them.
func (p *Pager) Skip(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown += n
	if p.shown > len(p.groups) {
		p.shown = len(p.groups)
	}
	if p.shown < 0 {
		p.shown = 0
	}
}

func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && p.shown < len(p.groups)
}

// Shown is how many groups have been revealed so far.
func (p *Pager) Shown() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shown
}

// Close tears the pager down.
func (p *Pager) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.groups = nil
}
