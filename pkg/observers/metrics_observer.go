package observers

import (
	"sync"
	"time"

	"github.com/anggasct/junction/pkg/fsm"
	"github.com/anggasct/junction/pkg/metrics"
)

// MetricsObserver exports state machine activity to Prometheus and keeps
// in-process counters for inspection.
type MetricsObserver struct {
	fsm.BaseObserver

	now              func() time.Time
	stateVisits      map[string]int
	transitionCounts map[string]int
	errorCount       int
	lastStateEntry   map[string]time.Time
	mutex            sync.RWMutex
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		now:              time.Now,
		stateVisits:      make(map[string]int),
		transitionCounts: make(map[string]int),
		lastStateEntry:   make(map[string]time.Time),
	}
}

// OnStateEnter records state entry metrics
func (o *MetricsObserver) OnStateEnter(state string, ctx fsm.Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stateVisits[state]++
	o.lastStateEntry[state] = o.now()
}

// OnStateExit records the time spent in the state
func (o *MetricsObserver) OnStateExit(state string, ctx fsm.Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if entryTime, ok := o.lastStateEntry[state]; ok {
		metrics.RecordSignalStateDuration(state, o.now().Sub(entryTime))
		delete(o.lastStateEntry, state)
	}
}

// OnTransition records transition metrics
func (o *MetricsObserver) OnTransition(from, to string, event fsm.Event, ctx fsm.Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.transitionCounts[from+"->"+to]++
	metrics.RecordSignalTransition(from, to)
}

// OnEventRejected records rejected events
func (o *MetricsObserver) OnEventRejected(event fsm.Event, reason string, ctx fsm.Context) {
	metrics.RecordSignalRejection(event.Name())
}

// OnError records error metrics
func (o *MetricsObserver) OnError(err error, ctx fsm.Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.errorCount++
}

// StateVisitCounts returns the number of times each state was entered
func (o *MetricsObserver) StateVisitCounts() map[string]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[string]int, len(o.stateVisits))
	for state, count := range o.stateVisits {
		result[state] = count
	}
	return result
}

// TransitionCounts returns the number of times each transition occurred
func (o *MetricsObserver) TransitionCounts() map[string]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[string]int, len(o.transitionCounts))
	for transition, count := range o.transitionCounts {
		result[transition] = count
	}
	return result
}

// ErrorCount returns the number of errors
func (o *MetricsObserver) ErrorCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.errorCount
}
