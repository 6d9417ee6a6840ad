package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/lanes"
	"github.com/anggasct/junction/pkg/logging"
	"github.com/anggasct/junction/pkg/metrics"
	"github.com/anggasct/junction/pkg/scheduler"
	"github.com/anggasct/junction/pkg/simulation"
)

// greenWorld ticks a fresh scheduler until north is green with traffic queued
func greenWorld(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(context.Background(), scheduler.DefaultConfig(), scheduler.WithLogger(testr.New(t)))
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := s.Arrive("A1", core.Straight)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := s.Tick(context.Background(), time.Second)
		require.NoError(t, err)
	}
	return s
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestEndpoints_NoSnapshotYet(t *testing.T) {
	ts := httptest.NewServer(New(simulation.NewPublisher()).Handler())
	defer ts.Close()

	for _, path := range []string{"/snapshot", "/stats"} {
		resp, _ := get(t, ts.URL+path)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}

	resp, body := get(t, ts.URL+"/debug/signal.dot")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "gold")
}

func TestSnapshotEndpoint(t *testing.T) {
	s := greenWorld(t)
	pub := simulation.NewPublisher()
	pub.Publish(s.Snapshot())

	ts := httptest.NewServer(New(pub).Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/snapshot")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got scheduler.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	if diff := cmp.Diff(*pub.Latest(), got); diff != "" {
		t.Errorf("Unexpected snapshot (-want +got):\n%s", diff)
	}
	assert.Contains(t, body, `"phase":"GREEN"`)
	assert.Contains(t, body, `"direction":"north"`)
}

func TestStatsAndDOTEndpoints(t *testing.T) {
	pub := simulation.NewPublisher()
	pub.Publish(greenWorld(t).Snapshot())

	ts := httptest.NewServer(New(pub).Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body, "Lane Statistics\n"))
	assert.Contains(t, body, "Traffic Light: GREEN NORTH")

	resp, body = get(t, ts.URL+"/debug/signal.dot")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"green_north" [shape=box style="filled" fillcolor=gold`)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Register()
	metrics.RecordTick()

	ts := httptest.NewServer(New(simulation.NewPublisher()).Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "junction_scheduler_ticks_total")
}

func TestWebsocketStream(t *testing.T) {
	s := greenWorld(t)
	pub := simulation.NewPublisher()
	pub.Publish(s.Snapshot())

	srv := New(pub)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first scheduler.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(2), first.Tick)
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	logger := testr.New(t)
	_, err = s.Tick(context.Background(), time.Second)
	require.NoError(t, err)
	pub.Publish(s.Snapshot())
	srv.BroadcastLatest(logger)
	// Same tick again is not resent.
	srv.BroadcastLatest(logger)

	var next scheduler.Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, uint64(3), next.Tick)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "duplicate tick must not be broadcast")

	conn.Close()
	require.Eventually(t, func() bool { return srv.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

type sourceFunc func() *scheduler.Snapshot

func (f sourceFunc) Latest() *scheduler.Snapshot { return f() }

func TestBroadcastLatest_DropsStalledClient(t *testing.T) {
	var tick atomic.Uint64
	padding := make([]lanes.LaneSnapshot, 4096)
	source := sourceFunc(func() *scheduler.Snapshot {
		return &scheduler.Snapshot{Tick: tick.Load(), Lanes: padding}
	})

	srv := New(source, WithBroadcastInterval(20*time.Millisecond))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// This client never reads, so the socket buffers eventually fill.
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	logger := testr.New(t)
	deadline := time.Now().Add(10 * time.Second)
	for srv.Clients() > 0 && time.Now().Before(deadline) {
		tick.Add(1)
		start := time.Now()
		srv.BroadcastLatest(logger)
		require.Less(t, time.Since(start), time.Second, "broadcast blocked on a stalled client")
	}
	assert.Zero(t, srv.Clients())
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	pub := simulation.NewPublisher()
	pub.Publish(scheduler.Snapshot{Tick: 7})
	srv := New(pub, WithAddress(addr), WithBroadcastInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(logging.IntoContext(context.Background(), testr.New(t)))
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/snapshot")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
