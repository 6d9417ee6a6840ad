// Package ingest reads vehicle arrivals appended to a shared file by an
// external generator and hands them to the lane table.
//
// # Record format v1
//
// One record per line, fields separated by commas:
//
//	lane,maneuver[,vehicle_id[,unix_millis]]
//
// lane is one of A1..D3 and maneuver one of STRAIGHT, LEFT or RIGHT, both
// case-insensitive. vehicle_id defaults to a fresh uuid and unix_millis to the
// simulated time of ingestion. Blank lines and lines starting with '#' are
// skipped. A trailing '\r' is tolerated. Only newline-terminated records are
// consumed.
package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anggasct/junction/pkg/core"
)

// ParsedArrival is one well-formed arrival record
type ParsedArrival struct {
	Lane      core.LaneID
	Maneuver  core.Maneuver
	VehicleID string
	// At is zero when the record carries no timestamp
	At time.Time
	// Offset is the byte position of the record in the arrival file
	Offset int64
}

const commentPrefix = "#"

// Parse decodes one line without its terminator. ok is false for blank and
// comment lines.
func Parse(line string, offset int64) (arrival ParsedArrival, ok bool, err error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if trimmed == "" || strings.HasPrefix(trimmed, commentPrefix) {
		return ParsedArrival{}, false, nil
	}

	fields := strings.Split(trimmed, ",")
	if len(fields) < 2 || len(fields) > 4 {
		return ParsedArrival{}, false, core.NewMalformedRecordError(offset, line,
			fmt.Sprintf("expected 2 to 4 fields, got %d", len(fields)))
	}

	lane, err := core.ParseLaneID(fields[0])
	if err != nil {
		return ParsedArrival{}, false, core.NewMalformedRecordError(offset, line, err.Error())
	}
	maneuver, err := core.ParseManeuver(fields[1])
	if err != nil {
		return ParsedArrival{}, false, core.NewMalformedRecordError(offset, line, err.Error())
	}
	arrival = ParsedArrival{Lane: lane, Maneuver: maneuver, Offset: offset}

	if len(fields) > 2 {
		arrival.VehicleID = strings.TrimSpace(fields[2])
	}
	if len(fields) > 3 {
		raw := strings.TrimSpace(fields[3])
		if raw != "" {
			millis, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || millis < 0 {
				return ParsedArrival{}, false, core.NewMalformedRecordError(offset, line, "invalid timestamp")
			}
			arrival.At = time.UnixMilli(millis).UTC()
		}
	}
	return arrival, true, nil
}

// FormatRecord encodes an arrival as one newline-terminated record
func FormatRecord(a ParsedArrival) string {
	var b strings.Builder
	b.WriteString(string(a.Lane))
	b.WriteByte(',')
	b.WriteString(string(a.Maneuver))
	if a.VehicleID != "" || !a.At.IsZero() {
		b.WriteByte(',')
		b.WriteString(a.VehicleID)
	}
	if !a.At.IsZero() {
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(a.At.UnixMilli(), 10))
	}
	b.WriteByte('\n')
	return b.String()
}
