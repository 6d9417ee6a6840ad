package simulation

import (
	"sync/atomic"

	"github.com/anggasct/junction/pkg/scheduler"
)

// Publisher hands the latest snapshot from the tick loop to readers on
// other goroutines. Published snapshots are never mutated.
type Publisher struct {
	latest atomic.Pointer[scheduler.Snapshot]
}

// NewPublisher creates an empty publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish replaces the current snapshot
func (p *Publisher) Publish(snap scheduler.Snapshot) {
	p.latest.Store(&snap)
}

// Latest returns the most recent snapshot, or nil before the first publish
func (p *Publisher) Latest() *scheduler.Snapshot {
	return p.latest.Load()
}
