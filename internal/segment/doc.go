// Package segment fetches the segments of a track.
//
// A Fetcher downloads one segment with retries: every attempt has its own
// timeout, delays grow by RetryPolicy.Delay, attempts rotate through the
// segment mirrors and a declared length is checked. Client errors (4xx
// except 408 and 429) are permanent and end the retries early.
//
// A Pool runs the Fetcher over every segment of a manifest with at most
// Size() fetches in flight:
//
//	fetcher := segment.NewFetcher(transport, segment.FetcherConfig{
//	    Policy:         segment.DefaultRetryPolicy(),
//	    AttemptTimeout: 30 * time.Second,
//	})
//	states, err := segment.NewPool(fetcher, 4).Run(ctx, m, ws)
//	var tfe *segment.TrackFetchError
//	if errors.As(err, &tfe) {
//	    fmt.Println("failed segments:", tfe.FailedIndices)
//	}
package segment
