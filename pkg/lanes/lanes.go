// Package lanes owns the twelve fixed lanes of the intersection and their queues.
package lanes

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/queue"
)

// Lane is one approach lane with its queue and congestion flag
type Lane struct {
	id             core.LaneID
	class          core.Classification
	queue          *queue.VehicleQueue
	priorityActive bool
	ingested       uint64
	released       uint64

	locking bool
	mu      sync.Mutex
}

func (l *Lane) lock() {
	if l.locking {
		l.mu.Lock()
	}
}

func (l *Lane) unlock() {
	if l.locking {
		l.mu.Unlock()
	}
}

// ID returns the lane identifier
func (l *Lane) ID() core.LaneID {
	return l.id
}

// Classification returns the static lane class
func (l *Lane) Classification() core.Classification {
	return l.class
}

// Len returns the current queue length
func (l *Lane) Len() int {
	l.lock()
	defer l.unlock()
	return l.queue.Len()
}

// LaneSnapshot is a read-only view of one lane
type LaneSnapshot struct {
	ID             core.LaneID         `json:"id"`
	Direction      core.Direction      `json:"direction"`
	Classification core.Classification `json:"classification"`
	Length         int                 `json:"length"`
	PriorityActive bool                `json:"priorityActive"`
	Ingested       uint64              `json:"ingested"`
	Released       uint64              `json:"released"`
}

// Option configures a Table
type Option func(*Table)

// WithLocking guards every lane with a mutex so arrivals may be ingested
// from a goroutine other than the one that ticks the scheduler.
func WithLocking() Option {
	return func(t *Table) {
		t.locking = true
	}
}

// Table holds the twelve lanes keyed by identifier
type Table struct {
	lanes   map[core.LaneID]*Lane
	order   []core.LaneID
	locking bool
}

// NewTable creates the fixed lane table with empty queues
func NewTable(opts ...Option) *Table {
	t := &Table{
		lanes: make(map[core.LaneID]*Lane),
		order: core.AllLanes(),
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, id := range t.order {
		t.lanes[id] = &Lane{
			id:      id,
			class:   id.Classification(),
			queue:   queue.New(id),
			locking: t.locking,
		}
	}
	return t
}

// Lane looks up a lane by identifier
func (t *Table) Lane(id core.LaneID) (*Lane, error) {
	lane, ok := t.lanes[id]
	if !ok {
		return nil, core.NewUnknownLaneError(string(id), "lookup")
	}
	return lane, nil
}

// IDs returns the lane identifiers in table order
func (t *Table) IDs() []core.LaneID {
	out := make([]core.LaneID, len(t.order))
	copy(out, t.order)
	return out
}

// LengthOf returns the queue length of a lane
func (t *Table) LengthOf(id core.LaneID) (int, error) {
	lane, err := t.Lane(id)
	if err != nil {
		return 0, err
	}
	return lane.Len(), nil
}

// Classify returns the static classification of a lane
func (t *Table) Classify(id core.LaneID) (core.Classification, error) {
	lane, err := t.Lane(id)
	if err != nil {
		return "", err
	}
	return lane.class, nil
}

// Ingest appends a vehicle to the tail of the lane's queue
func (t *Table) Ingest(id core.LaneID, v *core.Vehicle) error {
	lane, ok := t.lanes[id]
	if !ok {
		return core.NewUnknownLaneError(string(id), "ingest")
	}

	lane.lock()
	defer lane.unlock()

	v.Lane = id
	v.State = core.Queued
	lane.queue.Enqueue(v)
	lane.ingested++
	return nil
}

// Release dequeues up to max vehicles from the head of a lane and marks
// them released at now. An empty lane yields an empty slice.
func (t *Table) Release(id core.LaneID, max int, now time.Time) ([]*core.Vehicle, error) {
	return t.ReleaseWhile(id, max, now, nil)
}

// ReleaseWhile is Release that stops at the first head vehicle for which
// pred returns false. A nil pred accepts every vehicle.
func (t *Table) ReleaseWhile(id core.LaneID, max int, now time.Time, pred func(*core.Vehicle) bool) ([]*core.Vehicle, error) {
	lane, ok := t.lanes[id]
	if !ok {
		return nil, core.NewUnknownLaneError(string(id), "release")
	}

	if max <= 0 {
		return []*core.Vehicle{}, nil
	}

	lane.lock()
	defer lane.unlock()

	released := make([]*core.Vehicle, 0, lo.Min([]int{max, lane.queue.Len()}))
	for len(released) < max {
		head, err := lane.queue.Peek()
		if err != nil {
			break
		}
		if pred != nil && !pred(head) {
			break
		}
		v, _ := lane.queue.Dequeue()
		v.State = core.Released
		v.ReleasedAt = now
		released = append(released, v)
	}
	lane.released += uint64(len(released))
	return released, nil
}

// SetPriorityActive records the congestion flag of a lane
func (t *Table) SetPriorityActive(id core.LaneID, active bool) error {
	lane, err := t.Lane(id)
	if err != nil {
		return err
	}
	lane.lock()
	lane.priorityActive = active
	lane.unlock()
	return nil
}

// PriorityActive reports the congestion flag of a lane. Unknown lanes are inactive.
func (t *Table) PriorityActive(id core.LaneID) bool {
	lane, ok := t.lanes[id]
	if !ok {
		return false
	}
	lane.lock()
	defer lane.unlock()
	return lane.priorityActive
}

// PriorityLanes returns the lanes allowed to request a priority override
func (t *Table) PriorityLanes() []core.LaneID {
	return lo.Filter(t.order, func(id core.LaneID, _ int) bool {
		return t.lanes[id].class == core.PriorityEligible
	})
}

// FreeLeftLanes returns the lanes that release LEFT vehicles on any signal
func (t *Table) FreeLeftLanes() []core.LaneID {
	return lo.Filter(t.order, func(id core.LaneID, _ int) bool {
		return t.lanes[id].class == core.FreeLeft
	})
}

// Gated returns the lanes of a direction that wait for its green
func (t *Table) Gated(d core.Direction) []core.LaneID {
	return lo.Filter(t.order, func(id core.LaneID, _ int) bool {
		return id.Direction() == d && t.lanes[id].class.Gated()
	})
}

// Normal returns the NORMAL and PRIORITY_ELIGIBLE lanes of a direction.
// Their queues drive green selection and duration; the incoming-only lane does not.
func (t *Table) Normal(d core.Direction) []core.LaneID {
	return lo.Filter(t.order, func(id core.LaneID, _ int) bool {
		class := t.lanes[id].class
		return id.Direction() == d && (class == core.Normal || class == core.PriorityEligible)
	})
}

// Lengths returns the queue length of each lane in ids. Unknown lanes count as zero.
func (t *Table) Lengths(ids []core.LaneID) []int {
	return lo.Map(ids, func(id core.LaneID, _ int) int {
		n, err := t.LengthOf(id)
		if err != nil {
			return 0
		}
		return n
	})
}

// NormalQueue returns the aggregate queue length of a direction's normal lanes
func (t *Table) NormalQueue(d core.Direction) int {
	return lo.Sum(t.Lengths(t.Normal(d)))
}

// TotalQueued returns the number of vehicles waiting across all lanes
func (t *Table) TotalQueued() int {
	return lo.Sum(t.Lengths(t.order))
}

// Counters returns how many vehicles a lane has ingested and released
func (t *Table) Counters(id core.LaneID) (ingested, released uint64, err error) {
	lane, err := t.Lane(id)
	if err != nil {
		return 0, 0, err
	}
	lane.lock()
	defer lane.unlock()
	return lane.ingested, lane.released, nil
}

// Snapshot copies the state of every lane in table order
func (t *Table) Snapshot() []LaneSnapshot {
	return lo.Map(t.order, func(id core.LaneID, _ int) LaneSnapshot {
		lane := t.lanes[id]
		lane.lock()
		defer lane.unlock()
		return LaneSnapshot{
			ID:             id,
			Direction:      id.Direction(),
			Classification: lane.class,
			Length:         lane.queue.Len(),
			PriorityActive: lane.priorityActive,
			Ingested:       lane.ingested,
			Released:       lane.released,
		}
	})
}

// Vehicles returns copies of the vehicles queued on a lane, head first
func (t *Table) Vehicles(id core.LaneID) ([]core.Vehicle, error) {
	lane, err := t.Lane(id)
	if err != nil {
		return nil, err
	}
	lane.lock()
	defer lane.unlock()
	return lane.queue.Snapshot(), nil
}
