package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/roadguard/go-roadguard/pkg/latch"
	"github.com/roadguard/go-roadguard/pkg/monitor"
	"gocv.io/x/gocv"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	mu     sync.Mutex
	writes []Message
	types  []int
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) SetReadLimit(int64) {}
func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(t int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, t)
	c.writes = append(c.writes, Message{Data: data})
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written() ([]int, []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.types...), append([]Message(nil), c.writes...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test")
	go h.Run(ctx)
	t.Cleanup(cancel)
	waitFor(t, "hub running", h.IsRunning)
	return h
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	h := startHub(t)

	var counts []int
	var mu sync.Mutex
	h.OnCount(func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	})

	a, b := newFakeConn(), newFakeConn()
	go NewClient(h, a).Run()
	go NewClient(h, b).Run()
	waitFor(t, "two clients", func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]string{"kind": "started"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	for _, c := range []*fakeConn{a, b} {
		waitFor(t, "two writes", func() bool {
			_, w := c.written()
			return len(w) >= 2
		})
		types, writes := c.written()
		if types[0] != websocket.TextMessage || string(writes[0].Data) != `{"kind":"started"}` {
			t.Errorf("first write = %d %q", types[0], writes[0].Data)
		}
		if types[1] != websocket.BinaryMessage {
			t.Errorf("second write type = %d, want binary", types[1])
		}
	}

	a.Close()
	waitFor(t, "disconnect", func() bool { return h.ClientCount() == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(counts) == 0 || counts[len(counts)-1] != 1 {
		t.Errorf("count callbacks = %v", counts)
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h := New("idle")
	for i := 0; i < 300; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	if h.Dropped() == 0 {
		t.Error("expected drops once the queue is full")
	}
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("stop")
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	waitFor(t, "hub running", h.IsRunning)

	c := newFakeConn()
	go NewClient(h, c).Run()
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if h.ClientCount() != 0 || h.IsRunning() {
		t.Errorf("after stop: clients=%d running=%v", h.ClientCount(), h.IsRunning())
	}
}

func TestClient_RunReturnsAfterHubStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("shutdown")
	go h.Run(ctx)
	waitFor(t, "hub running", h.IsRunning)

	connected := newFakeConn()
	returned := make(chan struct{})
	go func() {
		NewClient(h, connected).Run()
		close(returned)
	}()
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })

	cancel()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("client Run still blocked after hub shutdown")
	}

	// A client arriving after shutdown must not block either.
	late := newFakeConn()
	lateDone := make(chan struct{})
	go func() {
		NewClient(h, late).Run()
		close(lateDone)
	}()
	select {
	case <-lateDone:
	case <-time.After(2 * time.Second):
		t.Fatal("late client blocked on a stopped hub")
	}
	select {
	case <-late.closed:
	default:
		t.Error("late client connection left open")
	}
}

func TestFeed_PublishesReportsAndThrottlesFrames(t *testing.T) {
	transitions, camera := startHub(t), startHub(t)
	tc, cc := newFakeConn(), newFakeConn()
	go NewClient(transitions, tc).Run()
	go NewClient(camera, cc).Run()
	waitFor(t, "clients", func() bool {
		return transitions.ClientCount() == 1 && camera.ClientCount() == 1
	})

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	f := NewFeed(transitions, camera)
	f.now = func() time.Time { return now }

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	r := monitor.Report{Seq: 1, At: now, Conditions: []monitor.ConditionReport{
		{Name: monitor.EyesClosed, Kind: latch.Started, Active: true},
	}}
	f.Observe(frame, r)
	now = now.Add(10 * time.Millisecond)
	r.Seq = 2
	f.Observe(frame, r)

	waitFor(t, "reports", func() bool {
		_, w := tc.written()
		return len(w) == 2
	})
	_, reports := tc.written()
	var got monitor.Report
	if err := json.Unmarshal(reports[0].Data, &got); err != nil {
		t.Fatalf("report JSON: %v", err)
	}
	if got.Seq != 1 || len(got.Conditions) != 1 || got.Conditions[0].Name != monitor.EyesClosed {
		t.Errorf("report = %+v", got)
	}

	waitFor(t, "one frame", func() bool {
		_, w := cc.written()
		return len(w) == 1
	})
	time.Sleep(20 * time.Millisecond)
	if _, w := cc.written(); len(w) != 1 {
		t.Errorf("camera frames = %d, want 1 within the interval", len(w))
	}
}
