package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/junction/pkg/core"
)

func TestParse(t *testing.T) {
	at := time.UnixMilli(1700000000123).UTC()

	tests := []struct {
		name   string
		line   string
		want   ParsedArrival
		skip   bool
		errMsg string
	}{
		{name: "minimal", line: "A1,STRAIGHT", want: ParsedArrival{Lane: "A1", Maneuver: core.Straight}},
		{name: "case insensitive", line: " d3 , left ", want: ParsedArrival{Lane: "D3", Maneuver: core.Left}},
		{name: "crlf", line: "B2,RIGHT\r", want: ParsedArrival{Lane: "B2", Maneuver: core.Right}},
		{name: "vehicle id", line: "C2,LEFT,car-7", want: ParsedArrival{Lane: "C2", Maneuver: core.Left, VehicleID: "car-7"}},
		{name: "timestamp", line: "A2,STRAIGHT,car-8,1700000000123",
			want: ParsedArrival{Lane: "A2", Maneuver: core.Straight, VehicleID: "car-8", At: at}},
		{name: "empty id with timestamp", line: "A2,STRAIGHT,,1700000000123",
			want: ParsedArrival{Lane: "A2", Maneuver: core.Straight, At: at}},
		{name: "blank", line: "   ", skip: true},
		{name: "comment", line: "# generated", skip: true},
		{name: "too few fields", line: "A1", errMsg: "expected 2 to 4 fields"},
		{name: "too many fields", line: "A1,LEFT,x,1,2", errMsg: "expected 2 to 4 fields"},
		{name: "unknown lane", line: "E1,LEFT", errMsg: "unknown lane"},
		{name: "unknown maneuver", line: "A1,UTURN", errMsg: "unknown maneuver"},
		{name: "bad timestamp", line: "A1,LEFT,x,soon", errMsg: "invalid timestamp"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := Parse(tc.line, 42)
			if tc.errMsg != "" {
				require.Error(t, err)
				assert.True(t, core.IsMalformedRecord(err))
				assert.Contains(t, err.Error(), tc.errMsg)
				assert.Contains(t, err.Error(), "offset 42")
				return
			}
			require.NoError(t, err)
			if tc.skip {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			tc.want.Offset = 42
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatRecord(t *testing.T) {
	at := time.UnixMilli(1700000000000).UTC()

	assert.Equal(t, "A1,LEFT\n", FormatRecord(ParsedArrival{Lane: "A1", Maneuver: core.Left}))
	assert.Equal(t, "B3,LEFT,v1\n", FormatRecord(ParsedArrival{Lane: "B3", Maneuver: core.Left, VehicleID: "v1"}))
	assert.Equal(t, "C1,RIGHT,,1700000000000\n", FormatRecord(ParsedArrival{Lane: "C1", Maneuver: core.Right, At: at}))

	rec := ParsedArrival{Lane: "D2", Maneuver: core.Straight, VehicleID: "v9", At: at}
	got, ok, err := Parse(FormatRecord(rec)[:len(FormatRecord(rec))-1], 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}
