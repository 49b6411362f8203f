// Package http provides the HTTP client used for Tidal API requests and
// segment downloads.
//
// The Client in this package handles:
//   - User-Agent headers
//   - Request throttling via golang.org/x/time/rate
//   - OpenTelemetry instrumentation via otelhttp
//   - Byte-range segment requests
//   - Mapping non-2xx responses to *StatusError
//
// # Basic Usage
//
//	client := http.NewClient(http.Options{Timeout: 30 * time.Second})
//
//	// Fetch and decode a JSON document
//	var track dto.Track
//	err := client.GetJSON(ctx, trackURL, header, &track)
//
//	// Fetch a segment
//	data, err := client.FetchSegment(ctx, segmentURL, nil)
//
// # Errors
//
// StatusError exposes the response code through StatusCode, which the
// segment fetcher uses to tell permanent from transient failures:
//
//	var se *http.StatusError
//	if errors.As(err, &se) && se.Code == 404 {
//	    // gone
//	}
package http
