package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/handiism/tidal-downloader/internal/download"
	"github.com/handiism/tidal-downloader/internal/segment"
)

var (
	SegmentsFetchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tidal_dl",
		Name:      "segments_fetched_total",
		Help:      "Total number of segments stored in their slot.",
	})

	SegmentRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tidal_dl",
		Name:      "segment_retries_total",
		Help:      "Total number of failed segment attempts that were retried.",
	})

	SegmentsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tidal_dl",
		Name:      "segments_in_flight",
		Help:      "Number of segments currently being fetched.",
	})

	BytesReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tidal_dl",
		Name:      "bytes_received_total",
		Help:      "Total number of segment bytes received.",
	})

	TracksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tidal_dl",
		Name:      "tracks_total",
		Help:      "Total tracks finished by outcome and failed stage.",
	}, []string{"outcome", "stage"})

	TrackDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tidal_dl",
		Name:      "track_duration_seconds",
		Help:      "Wall time of a track pipeline in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	AlbumsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tidal_dl",
		Name:      "albums_total",
		Help:      "Total albums finished, complete or partial.",
	}, []string{"result"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		SegmentsFetchedTotal,
		SegmentRetriesTotal,
		SegmentsInFlight,
		BytesReceivedTotal,
		TracksTotal,
		TrackDuration,
		AlbumsTotal,
	)
}

// SegmentHooks tracks segments in flight. Counters are fed by Observer.
func SegmentHooks() segment.Hooks {
	return segment.Hooks{
		Started:  func(int) { SegmentsInFlight.Inc() },
		Finished: func(int, error) { SegmentsInFlight.Dec() },
	}
}

// Observer records download events.
func Observer() download.Observer {
	return download.ObserverFunc(observe)
}

func observe(e download.Event) {
	switch e.Kind {
	case download.EventBytes:
		SegmentsFetchedTotal.Inc()
		BytesReceivedTotal.Add(float64(e.Bytes))
	case download.EventRetry:
		SegmentRetriesTotal.Inc()
	case download.EventTrackDone:
		outcome := "downloaded"
		if e.Skipped {
			outcome = "skipped"
		}
		TracksTotal.WithLabelValues(outcome, "").Inc()
		TrackDuration.Observe(e.Duration.Seconds())
	case download.EventTrackFailed:
		TracksTotal.WithLabelValues("failed", e.Stage.String()).Inc()
		TrackDuration.Observe(e.Duration.Seconds())
	case download.EventAlbumDone:
		result := "complete"
		if e.Album != nil && e.Album.Failed > 0 {
			result = "partial"
		}
		AlbumsTotal.WithLabelValues(result).Inc()
	}
}
