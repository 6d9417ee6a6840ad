// Package metrics defines the Prometheus collectors exported by junction.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "junction"

// Registry holds every junction collector plus the Go and process collectors
var Registry = prometheus.NewRegistry()

var (
	ticksCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Number of scheduler ticks executed.",
		},
	)
	faultsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "faults_total",
			Help:      "Number of invariant violations that put the scheduler into its fault state.",
		},
	)
	preemptionsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "preemptions_total",
			Help:      "Number of greens cut short by an active priority lane.",
		},
	)
	selectionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "selections_total",
			Help:      "Number of green selections per direction and reason.",
		},
		[]string{"direction", "reason"},
	)
	greenDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "green_duration_seconds",
			Help:      "Adaptive green durations granted by the scheduler.",
			Buckets:   []float64{1, 2, 4, 6, 8, 10, 15, 20, 30, 45, 60, 90, 120},
		},
	)

	arrivalsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "arrivals_total",
			Help:      "Number of vehicle arrivals ingested per lane.",
		},
		[]string{"lane"},
	)
	malformedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "malformed_records_total",
			Help:      "Number of arrival records dropped because they could not be parsed.",
		},
	)
	bytesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Number of arrival file bytes consumed.",
		},
	)

	releasedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lane",
			Name:      "released_total",
			Help:      "Number of vehicles released per lane.",
		},
		[]string{"lane"},
	)
	queueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lane",
			Name:      "queue_length",
			Help:      "Vehicles currently queued per lane.",
		},
		[]string{"lane"},
	)
	priorityActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lane",
			Name:      "priority_active",
			Help:      "1 while a priority-eligible lane holds the priority flag.",
		},
		[]string{"lane"},
	)

	signalTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "transitions_total",
			Help:      "Number of traffic light state transitions.",
		},
		[]string{"from", "to"},
	)
	signalRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "rejections_total",
			Help:      "Number of traffic light events that were rejected.",
		},
		[]string{"event"},
	)
	signalStateSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "state_seconds",
			Help:      "Wall-clock time spent in each traffic light state.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"state"},
	)
	signalGreen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "green",
			Help:      "1 for the direction currently shown green.",
		},
		[]string{"direction"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			ticksCounter,
			faultsCounter,
			preemptionsCounter,
			selectionsCounter,
			greenDuration,
			arrivalsCounter,
			malformedCounter,
			bytesCounter,
			releasedCounter,
			queueLength,
			priorityActive,
			signalTransitions,
			signalRejections,
			signalStateSeconds,
			signalGreen,
		)
	})
}

// Handler serves the junction registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordTick counts one scheduler tick.
func RecordTick() {
	ticksCounter.Inc()
}

// RecordFault counts a transition of the scheduler into its fault state.
func RecordFault() {
	faultsCounter.Inc()
}

// RecordPreemption counts a green ended early for a priority lane.
func RecordPreemption() {
	preemptionsCounter.Inc()
}

// RecordSelection counts a green selection and the duration granted.
func RecordSelection(direction, reason string, green time.Duration) {
	selectionsCounter.WithLabelValues(direction, reason).Inc()
	greenDuration.Observe(green.Seconds())
}

// RecordArrival counts an ingested vehicle.
func RecordArrival(lane string) {
	arrivalsCounter.WithLabelValues(lane).Inc()
}

// RecordMalformedRecord counts a dropped arrival record.
func RecordMalformedRecord() {
	malformedCounter.Inc()
}

// RecordBytesRead counts consumed arrival file bytes.
func RecordBytesRead(n int) {
	bytesCounter.Add(float64(n))
}

// RecordReleased counts vehicles released from a lane.
func RecordReleased(lane string, n int) {
	if n > 0 {
		releasedCounter.WithLabelValues(lane).Add(float64(n))
	}
}

// RecordLaneState sets the queue length and priority gauges of a lane.
func RecordLaneState(lane string, length int, active bool) {
	queueLength.WithLabelValues(lane).Set(float64(length))
	if active {
		priorityActive.WithLabelValues(lane).Set(1)
	} else {
		priorityActive.WithLabelValues(lane).Set(0)
	}
}

// RecordSignalTransition counts a light state transition.
func RecordSignalTransition(from, to string) {
	signalTransitions.WithLabelValues(from, to).Inc()
}

// RecordSignalRejection counts a rejected light event.
func RecordSignalRejection(event string) {
	signalRejections.WithLabelValues(event).Inc()
}

// RecordSignalStateDuration observes the time spent in a light state.
func RecordSignalStateDuration(state string, d time.Duration) {
	signalStateSeconds.WithLabelValues(state).Observe(d.Seconds())
}

// RecordSignalGreen marks which direction is green. An empty direction means all red.
func RecordSignalGreen(directions []string, green string) {
	for _, d := range directions {
		if d == green {
			signalGreen.WithLabelValues(d).Set(1)
		} else {
			signalGreen.WithLabelValues(d).Set(0)
		}
	}
}
