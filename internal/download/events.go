package download

import (
	"sync"
	"time"

	"github.com/handiism/tidal-downloader/internal/model"
)

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

func (l ProgressLevel) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelSuccess:
		return "success"
	default:
		return "info"
	}
}

// EventKind tells which fields of an Event are meaningful.
type EventKind int

const (
	// EventMessage is a free-form progress line (Message, Level).
	EventMessage EventKind = iota

	// EventStage reports a track entering Stage.
	EventStage

	// EventBytes reports segment Segment stored with Bytes bytes.
	EventBytes

	// EventRetry reports failed attempt Attempt of segment Segment,
	// retried after Delay.
	EventRetry

	// EventTrackDone is the terminal event of a successful track.
	// Skipped is set when the file already existed.
	EventTrackDone

	// EventTrackFailed is the terminal event of a failed track; Stage is
	// the stage that failed.
	EventTrackFailed

	// EventAlbumProgress carries a fresh AlbumView after every terminal
	// track event.
	EventAlbumProgress

	// EventAlbumDone is emitted once per album after every track ended.
	EventAlbumDone
)

func (k EventKind) String() string {
	switch k {
	case EventStage:
		return "stage"
	case EventBytes:
		return "bytes"
	case EventRetry:
		return "retry"
	case EventTrackDone:
		return "track_done"
	case EventTrackFailed:
		return "track_failed"
	case EventAlbumProgress:
		return "album_progress"
	case EventAlbumDone:
		return "album_done"
	default:
		return "message"
	}
}

// Event is a state transition reported to an Observer.
type Event struct {
	Kind EventKind
	Time time.Time

	Level   ProgressLevel
	Message string

	Track *model.Track
	Stage Stage

	Segment int
	Attempt int
	Delay   time.Duration
	Bytes   int64

	Skipped  bool
	Duration time.Duration
	Err      error

	Album *AlbumView
}

// TrackID returns the id of the track the event is about, if any.
func (e Event) TrackID() string {
	if e.Track == nil {
		return ""
	}
	return e.Track.ID
}

// Observer receives progress events. Observe is called from pipeline
// goroutines and must not block; wrap slow sinks in an AsyncObserver.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// MultiObserver fans every event out to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) Observe(e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// AsyncObserver queues events and delivers them to the wrapped observer
// from a single goroutine, in order. The queue is unbounded so Observe
// never blocks.
type AsyncObserver struct {
	next Observer

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	done   chan struct{}
}

// NewAsyncObserver starts delivering to next. Call Close to flush.
func NewAsyncObserver(next Observer) *AsyncObserver {
	a := &AsyncObserver{next: next, done: make(chan struct{})}
	a.cond = sync.NewCond(&a.mu)
	go a.loop()
	return a
}

// Observe enqueues e. Events observed after Close are dropped.
func (a *AsyncObserver) Observe(e Event) {
	a.mu.Lock()
	if !a.closed {
		a.queue = append(a.queue, e)
		a.cond.Signal()
	}
	a.mu.Unlock()
}

// Close delivers every queued event and stops the delivery goroutine.
func (a *AsyncObserver) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		a.cond.Signal()
	}
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncObserver) loop() {
	defer close(a.done)
	for {
		a.mu.Lock()
		for len(a.queue) == 0 && !a.closed {
			a.cond.Wait()
		}
		if len(a.queue) == 0 && a.closed {
			a.mu.Unlock()
			return
		}
		batch := a.queue
		a.queue = nil
		a.mu.Unlock()

		for _, e := range batch {
			a.next.Observe(e)
		}
	}
}

// emit stamps e and hands it to o.
func emit(o Observer, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	o.Observe(e)
}
