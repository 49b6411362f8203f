// Package manifest decodes stream manifests into ordered segment lists.
//
// Decode is pure: it takes the encoded manifest handed out by the
// playback endpoint and the requested quality tier, and returns an
// immutable Manifest whose segments are indexed 0..N-1. Three envelopes
// are understood:
//
//   - MPEG-DASH (application/dash+xml): a SegmentTemplate is expanded into
//     the initialization segment followed by every media segment.
//   - BTS (application/vnd.tidal.bts): a JSON document naming one file and
//     its mirrors.
//   - HLS (application/vnd.apple.mpegurl): a media playlist; EXT-X-MAP
//     becomes the first segment and byte ranges are preserved.
//
// Every failure is a *ManifestDecodeError wrapping one of ErrMalformed,
// ErrUnsupportedType, ErrUnsupportedCodec, ErrNoSegments or
// ErrNonContiguous:
//
//	m, err := manifest.Decode(manifest.Encoded{MimeType: mime, Data: b64}, model.QualityHiRes)
//	if errors.Is(err, manifest.ErrUnsupportedCodec) {
//	    // try a lower tier
//	}
package manifest
