package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/handiism/tidal-downloader/internal/manifest"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("HTTP %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

// fakeTransport serves "seg-<n>" payloads from locations of the form
// "mem://<n>" and fails the first failures[n] calls for index n.
type fakeTransport struct {
	mu        sync.Mutex
	failures  map[string]int
	permanent map[string]error
	calls     map[string]int
	seen      []string

	delay    time.Duration
	cur, max atomic.Int32
	gate     chan struct{}
	gateAt   int32
	gateOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failures:  map[string]int{},
		permanent: map[string]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeTransport) FetchSegment(ctx context.Context, location string, _ *manifest.ByteRange) ([]byte, error) {
	n := f.cur.Add(1)
	defer f.cur.Add(-1)
	for {
		m := f.max.Load()
		if n <= m || f.max.CompareAndSwap(m, n) {
			break
		}
	}

	if f.gate != nil {
		if n >= f.gateAt {
			f.gateOnce.Do(func() { close(f.gate) })
		}
		select {
		case <-f.gate:
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[location]++
	f.seen = append(f.seen, location)
	if err, ok := f.permanent[location]; ok {
		return nil, err
	}
	if f.failures[location] > 0 {
		f.failures[location]--
		return nil, errors.New("connection reset by peer")
	}
	return payload(location), nil
}

func (f *fakeTransport) callCount(location string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[location]
}

func payload(location string) []byte {
	return []byte("payload:" + location + ";")
}

type memSlots struct {
	mu    sync.Mutex
	slots map[int][]byte
}

func newMemSlots() *memSlots { return &memSlots{slots: map[int][]byte{}} }

func (m *memSlots) WriteSlot(_ context.Context, index int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[index] = append([]byte(nil), data...)
	return nil
}

func (m *memSlots) concat(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write(m.slots[i])
	}
	return buf.Bytes()
}

func testManifest(n int) *manifest.Manifest {
	m := &manifest.Manifest{Container: manifest.ContainerMP4}
	for i := 0; i < n; i++ {
		m.Segments = append(m.Segments, manifest.SegmentRef{Index: i, URL: fmt.Sprintf("mem://%d", i)})
	}
	return m
}

func testFetcher(t Transport, hooks Hooks) *Fetcher {
	f := NewFetcher(t, FetcherConfig{
		Policy: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond},
		Hooks:  hooks,
	})
	f.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return f
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second, Jitter: 0.25}

	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		u       float64
		want    time.Duration
	}{
		{"first no jitter", p, 1, 0.5, time.Second},
		{"second no jitter", p, 2, 0.5, 2 * time.Second},
		{"third no jitter", p, 3, 0.5, 4 * time.Second},
		{"capped", p, 4, 0.5, 5 * time.Second},
		{"low jitter", p, 1, 0, 750 * time.Millisecond},
		{"high jitter", p, 2, 1, 2500 * time.Millisecond},
		{"jitter recapped", p, 3, 1, 5 * time.Second},
		{"attempt zero", p, 0, 0.5, time.Second},
		{"no cap", RetryPolicy{BaseDelay: time.Second, Multiplier: 3}, 3, 0.9, 9 * time.Second},
		{"multiplier below one", RetryPolicy{BaseDelay: time.Second, Multiplier: 0.5}, 3, 0.5, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Delay(tt.attempt, tt.u); got != tt.want {
				t.Errorf("Delay(%d, %v) = %v, want %v", tt.attempt, tt.u, got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("connection reset"), true},
		{statusErr(500), true},
		{statusErr(503), true},
		{statusErr(408), true},
		{statusErr(429), true},
		{statusErr(403), false},
		{statusErr(404), false},
		{fmt.Errorf("wrapped: %w", statusErr(410)), false},
		{fmt.Errorf("%w: got 1", ErrLengthMismatch), true},
		{nil, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFetcher_RetriesThenSucceeds(t *testing.T) {
	tr := newFakeTransport()
	tr.failures["mem://0"] = 2

	var retries []int
	f := testFetcher(tr, Hooks{Retry: func(index, attempt int, _ time.Duration, _ error) {
		retries = append(retries, attempt)
	}})
	slots := newMemSlots()

	res, err := f.Fetch(context.Background(), manifest.SegmentRef{Index: 0, URL: "mem://0"}, slots)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("retry hooks = %v, want [1 2]", retries)
	}
	if !bytes.Equal(slots.slots[0], payload("mem://0")) {
		t.Errorf("slot 0 = %q", slots.slots[0])
	}
}

func TestFetcher_Exhausted(t *testing.T) {
	tr := newFakeTransport()
	tr.failures["mem://5"] = 10

	f := testFetcher(tr, Hooks{})
	_, err := f.Fetch(context.Background(), manifest.SegmentRef{Index: 5, URL: "mem://5"}, newMemSlots())

	var sfe *SegmentFetchError
	if !errors.As(err, &sfe) {
		t.Fatalf("Fetch() error = %v, want *SegmentFetchError", err)
	}
	if sfe.Index != 5 || sfe.Attempts != 3 {
		t.Errorf("SegmentFetchError = %+v", sfe)
	}
	if got := tr.callCount("mem://5"); got != 3 {
		t.Errorf("transport calls = %d, want 3", got)
	}
}

func TestFetcher_PermanentStatus(t *testing.T) {
	tr := newFakeTransport()
	tr.permanent["mem://0"] = statusErr(403)

	f := testFetcher(tr, Hooks{})
	_, err := f.Fetch(context.Background(), manifest.SegmentRef{Index: 0, URL: "mem://0"}, newMemSlots())

	var sc StatusCoder
	if !errors.As(err, &sc) || sc.StatusCode() != 403 {
		t.Fatalf("Fetch() error = %v, want status 403", err)
	}
	if got := tr.callCount("mem://0"); got != 1 {
		t.Errorf("transport calls = %d, want 1", got)
	}
}

func TestFetcher_LengthMismatch(t *testing.T) {
	tr := newFakeTransport()
	f := testFetcher(tr, Hooks{})

	ref := manifest.SegmentRef{Index: 0, URL: "mem://0", ExpectedLength: 3}
	_, err := f.Fetch(context.Background(), ref, newMemSlots())
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("Fetch() error = %v, want ErrLengthMismatch", err)
	}
	if got := tr.callCount("mem://0"); got != 3 {
		t.Errorf("transport calls = %d, want 3 (length mismatch is transient)", got)
	}

	ref.ExpectedLength = int64(len(payload("mem://0")))
	if _, err := f.Fetch(context.Background(), ref, newMemSlots()); err != nil {
		t.Errorf("Fetch() with matching length error = %v", err)
	}
}

func TestFetcher_Mirrors(t *testing.T) {
	tr := newFakeTransport()
	tr.failures["mem://0"] = 10

	f := testFetcher(tr, Hooks{})
	ref := manifest.SegmentRef{Index: 0, URL: "mem://0", Mirrors: []string{"mem://mirror"}}
	slots := newMemSlots()

	res, err := f.Fetch(context.Background(), ref, slots)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	if !bytes.Equal(slots.slots[0], payload("mem://mirror")) {
		t.Errorf("slot 0 = %q, want mirror payload", slots.slots[0])
	}
}

func TestFetcher_CancelledDuringBackoff(t *testing.T) {
	tr := newFakeTransport()
	tr.failures["mem://0"] = 10

	ctx, cancel := context.WithCancel(context.Background())
	f := testFetcher(tr, Hooks{})
	f.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := f.Fetch(ctx, manifest.SegmentRef{Index: 0, URL: "mem://0"}, newMemSlots())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
	if got := tr.callCount("mem://0"); got != 1 {
		t.Errorf("transport calls = %d, want 1", got)
	}
}

func TestPool_RetryScenario(t *testing.T) {
	tr := newFakeTransport()
	tr.failures["mem://2"] = 2

	var (
		mu      sync.Mutex
		retries = map[int]int{}
	)
	f := testFetcher(tr, Hooks{Retry: func(index, _ int, _ time.Duration, _ error) {
		mu.Lock()
		retries[index]++
		mu.Unlock()
	}})
	m := testManifest(6)
	slots := newMemSlots()

	states, err := NewPool(f, 4).Run(context.Background(), m, slots)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, st := range states {
		if st.Status != StatusDone {
			t.Errorf("segment %d status = %v", i, st.Status)
		}
	}
	if states[2].Retries != 2 {
		t.Errorf("segment 2 retries = %d, want 2", states[2].Retries)
	}
	if retries[2] != 2 || len(retries) != 1 {
		t.Errorf("retry events = %v, want exactly 2 for segment 2", retries)
	}

	var want bytes.Buffer
	for i := 0; i < 6; i++ {
		want.Write(payload(fmt.Sprintf("mem://%d", i)))
	}
	if !bytes.Equal(slots.concat(6), want.Bytes()) {
		t.Error("reassembled bytes differ from a clean run")
	}
}

func TestPool_ConcurrencyBound(t *testing.T) {
	const size = 3
	tr := newFakeTransport()
	tr.gate = make(chan struct{})
	tr.gateAt = size
	tr.delay = 5 * time.Millisecond

	pool := NewPool(testFetcher(tr, Hooks{}), size)
	if _, err := pool.Run(context.Background(), testManifest(12), newMemSlots()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := tr.max.Load(); got != size {
		t.Errorf("max in flight = %d, want %d", got, size)
	}
	if pool.InFlight() != 0 {
		t.Errorf("InFlight() = %d after Run", pool.InFlight())
	}
}

func TestPool_FailFast(t *testing.T) {
	tr := newFakeTransport()
	tr.permanent["mem://1"] = statusErr(404)
	tr.delay = 20 * time.Millisecond

	m := testManifest(20)
	states, err := NewPool(testFetcher(tr, Hooks{}), 2).Run(context.Background(), m, newMemSlots())

	var tfe *TrackFetchError
	if !errors.As(err, &tfe) {
		t.Fatalf("Run() error = %v, want *TrackFetchError", err)
	}
	if len(tfe.FailedIndices) != 1 || tfe.FailedIndices[0] != 1 {
		t.Errorf("FailedIndices = %v, want [1]", tfe.FailedIndices)
	}
	var sfe *SegmentFetchError
	if !errors.As(err, &sfe) || sfe.Index != 1 {
		t.Errorf("TrackFetchError does not unwrap to segment 1: %v", err)
	}
	if states[0].Status != StatusDone {
		t.Errorf("in-flight segment 0 status = %v, want done", states[0].Status)
	}
	if states[19].Status != StatusPending {
		t.Errorf("segment 19 status = %v, want pending", states[19].Status)
	}
}

func TestPool_Cancelled(t *testing.T) {
	tr := newFakeTransport()
	tr.delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	states, err := NewPool(testFetcher(tr, Hooks{}), 2).Run(ctx, testManifest(10), newMemSlots())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if states[9].Status == StatusDone {
		t.Error("segment 9 completed after cancellation")
	}
}
