package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/logging"
	"github.com/anggasct/junction/pkg/metrics"
)

// DefaultMaxReadBytes bounds the bytes consumed by a single poll
const DefaultMaxReadBytes = 64 * 1024

// Sink receives ingested vehicles. *lanes.Table satisfies it.
type Sink interface {
	Ingest(id core.LaneID, v *core.Vehicle) error
}

// Options configures an Ingestor
type Options struct {
	// Path is the append-only arrival file
	Path string
	// OffsetPath is the sidecar holding the consumed offset. Empty keeps it in memory.
	OffsetPath string
	// MaxReadBytes bounds one poll. Zero means DefaultMaxReadBytes.
	MaxReadBytes int
}

// Stats counts what the ingestor has consumed since it was created
type Stats struct {
	Records   uint64
	Malformed uint64
	BytesRead uint64
}

// Ingestor reads newly appended arrival records. Poll and Ingest must be
// called from one goroutine; only the watcher runs concurrently.
type Ingestor struct {
	path    string
	maxRead int
	offsets *OffsetStore

	offset int64
	// discarding is set while skipping the rest of a record longer than maxRead
	discarding bool
	stats      Stats

	watching atomic.Bool
	dirty    atomic.Bool
}

// New creates an ingestor that resumes from the persisted offset
func New(opts Options) (*Ingestor, error) {
	if opts.Path == "" {
		return nil, core.NewConfigurationError("ingest", "arrival file path is required")
	}
	if opts.MaxReadBytes < 0 {
		return nil, core.NewConfigurationError("ingest", "max read bytes must not be negative")
	}
	maxRead := opts.MaxReadBytes
	if maxRead == 0 {
		maxRead = DefaultMaxReadBytes
	}

	offsets := NewOffsetStore(opts.OffsetPath)
	offset, err := offsets.Load()
	if err != nil {
		return nil, err
	}

	i := &Ingestor{
		path:    opts.Path,
		maxRead: maxRead,
		offsets: offsets,
		offset:  offset,
	}
	i.dirty.Store(true)
	return i, nil
}

// Offset returns the byte offset up to which records have been consumed
func (i *Ingestor) Offset() int64 {
	return i.offset
}

// Stats returns the consumption counters
func (i *Ingestor) Stats() Stats {
	return i.stats
}

// Poll returns the complete records appended since the last poll. It never
// blocks on the writer: a missing file or no new bytes yields no records, and
// a trailing fragment without its newline is left for a later poll.
func (i *Ingestor) Poll(ctx context.Context) ([]ParsedArrival, error) {
	logger := logging.FromContext(ctx).WithName("ingest")

	if i.watching.Load() && !i.dirty.Swap(false) {
		return nil, nil
	}

	f, err := os.Open(i.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening arrival file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat arrival file: %w", err)
	}
	size := info.Size()

	if size < i.offset {
		logger.Info("Arrival file shrank, restarting from the beginning", "offset", i.offset, "size", size)
		i.offset = 0
		i.discarding = false
		if err := i.offsets.Save(0); err != nil {
			return nil, err
		}
	}
	pending := size - i.offset
	if pending == 0 {
		return nil, nil
	}

	n := int64(i.maxRead)
	if pending < n {
		n = pending
	}
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, i.offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading arrival file: %w", err)
	}
	if pending > n {
		// More data than one poll may take; read the rest next time.
		i.dirty.Store(true)
	}

	arrivals, consumed := i.consume(logger, buf, n == int64(i.maxRead))
	if consumed == 0 {
		return nil, nil
	}

	i.offset += consumed
	i.stats.BytesRead += uint64(consumed)
	metrics.RecordBytesRead(int(consumed))
	if err := i.offsets.Save(i.offset); err != nil {
		return arrivals, err
	}
	logger.V(logging.TRACE).Info("Polled arrivals", "records", len(arrivals), "bytes", consumed, "offset", i.offset)
	return arrivals, nil
}

// consume parses every newline-terminated line in buf and returns how many
// bytes were used. A full buffer with no newline is part of an oversized
// record; it is dropped and the rest of that record skipped on later polls.
func (i *Ingestor) consume(logger logr.Logger, buf []byte, full bool) ([]ParsedArrival, int64) {
	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		if !full {
			return nil, 0
		}
		if !i.discarding {
			i.malformed(logger, core.NewMalformedRecordError(i.offset, string(buf[:min(len(buf), 64)]), "record exceeds read limit"))
		}
		i.discarding = true
		return nil, int64(len(buf))
	}

	var arrivals []ParsedArrival
	start := 0
	for start <= end {
		nl := start + bytes.IndexByte(buf[start:], '\n')
		line := string(buf[start:nl])
		offset := i.offset + int64(start)
		start = nl + 1

		if i.discarding {
			i.discarding = false
			continue
		}

		arrival, ok, err := Parse(line, offset)
		if err != nil {
			i.malformed(logger, err)
			continue
		}
		if ok {
			arrivals = append(arrivals, arrival)
			i.stats.Records++
		}
	}
	return arrivals, int64(end + 1)
}

func (i *Ingestor) malformed(logger logr.Logger, err error) {
	i.stats.Malformed++
	metrics.RecordMalformedRecord()
	logger.V(logging.VERBOSE).Info("Dropped malformed arrival record", "error", err.Error())
}

// Ingest polls the file and hands each arrival to sink. Vehicles without a
// recorded timestamp arrive at now. Rejected vehicles are logged and skipped.
func (i *Ingestor) Ingest(ctx context.Context, sink Sink, now time.Time) (int, error) {
	logger := logging.FromContext(ctx).WithName("ingest")

	arrivals, err := i.Poll(ctx)
	ingested := 0
	for _, a := range arrivals {
		v := Vehicle(a, now)
		if ierr := sink.Ingest(a.Lane, v); ierr != nil {
			logger.Error(ierr, "Arrival rejected", "lane", a.Lane, "vehicle", v.ID)
			continue
		}
		metrics.RecordArrival(string(a.Lane))
		ingested++
	}
	return ingested, err
}

// Vehicle builds the queued vehicle described by an arrival
func Vehicle(a ParsedArrival, now time.Time) *core.Vehicle {
	id := a.VehicleID
	if id == "" {
		id = uuid.New().String()
	}
	at := a.At
	if at.IsZero() {
		at = now
	}
	return &core.Vehicle{
		ID:        id,
		Lane:      a.Lane,
		Maneuver:  a.Maneuver,
		ArrivedAt: at,
		State:     core.Queued,
	}
}
