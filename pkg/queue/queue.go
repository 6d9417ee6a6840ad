// Package queue implements the per-lane FIFO of vehicles.
package queue

import "github.com/anggasct/junction/pkg/core"

const minCapacity = 8

// VehicleQueue is a strict FIFO backed by a growable ring buffer.
// It is not safe for concurrent use.
type VehicleQueue struct {
	lane  core.LaneID
	buf   []*core.Vehicle
	head  int
	count int
}

// New creates an empty queue for the given lane
func New(lane core.LaneID) *VehicleQueue {
	return &VehicleQueue{
		lane: lane,
		buf:  make([]*core.Vehicle, minCapacity),
	}
}

// Lane returns the lane that owns the queue
func (q *VehicleQueue) Lane() core.LaneID {
	return q.lane
}

// Enqueue appends a vehicle at the tail
func (q *VehicleQueue) Enqueue(v *core.Vehicle) {
	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = v
	q.count++
}

// Dequeue removes and returns the head vehicle
func (q *VehicleQueue) Dequeue() (*core.Vehicle, error) {
	if q.count == 0 {
		return nil, core.NewEmptyQueueError(q.lane)
	}
	v := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return v, nil
}

// Peek returns the head vehicle without removing it
func (q *VehicleQueue) Peek() (*core.Vehicle, error) {
	if q.count == 0 {
		return nil, core.NewEmptyQueueError(q.lane)
	}
	return q.buf[q.head], nil
}

// Len returns the number of queued vehicles
func (q *VehicleQueue) Len() int {
	return q.count
}

// Snapshot returns copies of the queued vehicles, head first
func (q *VehicleQueue) Snapshot() []core.Vehicle {
	out := make([]core.Vehicle, 0, q.count)
	for i := 0; i < q.count; i++ {
		out = append(out, *q.buf[(q.head+i)%len(q.buf)])
	}
	return out
}

func (q *VehicleQueue) grow() {
	next := make([]*core.Vehicle, len(q.buf)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}
