package segment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/handiism/tidal-downloader/internal/manifest"
)

const tracerName = "github.com/handiism/tidal-downloader/internal/segment"

// Transport retrieves the bytes at a location. A nil rng means the whole
// resource.
type Transport interface {
	FetchSegment(ctx context.Context, location string, rng *manifest.ByteRange) ([]byte, error)
}

// SlotWriter persists a fetched segment. *workspace.Workspace implements it.
type SlotWriter interface {
	WriteSlot(ctx context.Context, index int, data []byte) error
}

// Hooks receive fetch progress. Any of them may be nil. They are called
// from fetch goroutines and must not block.
type Hooks struct {
	// Retry is called for every failed attempt that will be retried.
	Retry func(index, attempt int, delay time.Duration, err error)

	// Fetched is called once a segment is stored in its slot.
	Fetched func(index int, n int64)

	// Started and Finished bracket every admitted segment.
	Started  func(index int)
	Finished func(index int, err error)
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Policy RetryPolicy

	// AttemptTimeout bounds each attempt separately. Zero disables it.
	AttemptTimeout time.Duration

	Hooks  Hooks
	Logger *slog.Logger
}

// Result describes a successful fetch.
type Result struct {
	Bytes    int64
	Attempts int
}

// Fetcher downloads single segments with retries.
type Fetcher struct {
	transport Transport
	policy    RetryPolicy
	timeout   time.Duration
	hooks     Hooks
	logger    *slog.Logger
	tracer    trace.Tracer

	sleep  func(context.Context, time.Duration) error
	jitter func() float64
}

// NewFetcher creates a Fetcher on top of t.
func NewFetcher(t Transport, cfg FetcherConfig) *Fetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		transport: t,
		policy:    cfg.Policy,
		timeout:   cfg.AttemptTimeout,
		hooks:     cfg.Hooks,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		sleep:     sleepContext,
		jitter:    rand.Float64,
	}
}

// Policy returns the retry policy in use.
func (f *Fetcher) Policy() RetryPolicy { return f.policy }

// Fetch downloads ref and writes it to its slot in ws. It makes up to
// Policy().Attempts() attempts, rotating through the segment mirrors, and
// stops early on a permanent error or when ctx is done.
//
// Any failure is returned as a *SegmentFetchError.
func (f *Fetcher) Fetch(ctx context.Context, ref manifest.SegmentRef, ws SlotWriter) (Result, error) {
	ctx, span := f.tracer.Start(ctx, "segment.fetch", trace.WithAttributes(
		attribute.Int("segment.index", ref.Index),
	))
	defer span.End()

	maxAttempts := f.policy.Attempts()
	var (
		attempt int
		last    error
	)
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			last = err
			attempt--
			break
		}

		data, err := f.attempt(ctx, ref, attempt)
		if err == nil {
			if err := ws.WriteSlot(ctx, ref.Index, data); err != nil {
				last = err
				break
			}
			n := int64(len(data))
			span.SetAttributes(attribute.Int("segment.attempts", attempt), attribute.Int64("segment.bytes", n))
			if f.hooks.Fetched != nil {
				f.hooks.Fetched(ref.Index, n)
			}
			return Result{Bytes: n, Attempts: attempt}, nil
		}

		last = err
		if ctx.Err() != nil || !retryable(err) || attempt == maxAttempts {
			break
		}

		delay := f.policy.Delay(attempt, f.jitter())
		f.logger.Debug("segment attempt failed, retrying",
			slog.Int("index", ref.Index),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if f.hooks.Retry != nil {
			f.hooks.Retry(ref.Index, attempt, delay, err)
		}
		if err := f.sleep(ctx, delay); err != nil {
			last = err
			break
		}
	}

	if attempt > maxAttempts {
		attempt = maxAttempts
	}
	span.RecordError(last)
	span.SetStatus(codes.Error, "segment fetch failed")
	return Result{Attempts: attempt}, &SegmentFetchError{Index: ref.Index, Attempts: attempt, LastCause: last}
}

func (f *Fetcher) attempt(ctx context.Context, ref manifest.SegmentRef, attempt int) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	data, err := f.transport.FetchSegment(ctx, ref.Location(attempt), ref.Range)
	if err != nil {
		return nil, err
	}
	if ref.ExpectedLength > 0 && int64(len(data)) != ref.ExpectedLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrLengthMismatch, len(data), ref.ExpectedLength)
	}
	return data, nil
}
