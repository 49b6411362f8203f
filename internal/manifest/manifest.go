package manifest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/handiism/tidal-downloader/internal/model"
)

// Envelope mime types understood by Decode.
const (
	MimeDASH = "application/dash+xml"
	MimeBTS  = "application/vnd.tidal.bts"
	MimeHLS  = "application/vnd.apple.mpegurl"
)

// Decode failure kinds. ManifestDecodeError wraps exactly one of them.
var (
	ErrMalformed        = errors.New("malformed manifest")
	ErrUnsupportedType  = errors.New("unsupported manifest type")
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrNoSegments       = errors.New("manifest has no segments")
	ErrNonContiguous    = errors.New("segment indices are not contiguous")
)

// ManifestDecodeError reports a manifest that cannot be turned into a
// segment list. It is never retried.
type ManifestDecodeError struct {
	Type string
	Err  error
}

func (e *ManifestDecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode manifest: %v", e.Err)
	}
	return fmt.Sprintf("decode %s manifest: %v", e.Type, e.Err)
}

func (e *ManifestDecodeError) Unwrap() error { return e.Err }

func decodeError(typ string, kind error, detail any) error {
	if detail == nil {
		return &ManifestDecodeError{Type: typ, Err: kind}
	}
	return &ManifestDecodeError{Type: typ, Err: fmt.Errorf("%w: %v", kind, detail)}
}

// Container is the file format the concatenated segments form.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerFLAC
	ContainerMP4
	ContainerMPEG
	ContainerTS
)

// Extension returns the output file extension, including the dot.
func (c Container) Extension() string {
	switch c {
	case ContainerFLAC:
		return ".flac"
	case ContainerMP4:
		return ".m4a"
	case ContainerMPEG:
		return ".mp3"
	case ContainerTS:
		return ".ts"
	default:
		return ".bin"
	}
}

func (c Container) String() string {
	switch c {
	case ContainerFLAC:
		return "flac"
	case ContainerMP4:
		return "mp4"
	case ContainerMPEG:
		return "mpeg"
	case ContainerTS:
		return "mpegts"
	default:
		return "unknown"
	}
}

// ByteRange selects part of a resource.
type ByteRange struct {
	Offset int64
	Length int64
}

// SegmentRef locates one segment of a track.
type SegmentRef struct {
	Index int
	URL   string

	// Mirrors are alternative locations for the same bytes.
	Mirrors []string

	// ExpectedLength is the declared byte length, 0 when unknown.
	ExpectedLength int64

	// Range is set when the segment is a sub-range of URL.
	Range *ByteRange
}

// Location returns the URL to use for the given 1-based attempt, rotating
// through the mirrors.
func (r SegmentRef) Location(attempt int) string {
	if len(r.Mirrors) == 0 || attempt <= 1 {
		return r.URL
	}
	i := (attempt - 1) % (len(r.Mirrors) + 1)
	if i == 0 {
		return r.URL
	}
	return r.Mirrors[i-1]
}

// Manifest is the decoded, immutable description of one track's stream.
type Manifest struct {
	// Type is the envelope the manifest was decoded from (MimeDASH, ...).
	Type string

	// MimeType and Codec describe the media stream, e.g. "audio/mp4" and "flac".
	MimeType string
	Codec    string

	Container Container
	Bandwidth int

	// Segments are ordered by Index, which runs 0..N-1.
	Segments []SegmentRef
}

// Len returns the number of segments.
func (m *Manifest) Len() int { return len(m.Segments) }

// Validate checks the segment list invariants.
func (m *Manifest) Validate() error {
	if len(m.Segments) == 0 {
		return decodeError(m.Type, ErrNoSegments, nil)
	}
	for i, seg := range m.Segments {
		if seg.Index != i {
			return decodeError(m.Type, ErrNonContiguous, fmt.Sprintf("position %d has index %d", i, seg.Index))
		}
		if seg.URL == "" {
			return decodeError(m.Type, ErrMalformed, fmt.Sprintf("segment %d has no location", i))
		}
	}
	return nil
}

// Encoded is a manifest as handed out by the manifest source.
type Encoded struct {
	// MimeType is the envelope type. Empty means sniff from content.
	MimeType string

	// Data is the manifest, base64-encoded or plain text.
	Data string

	// BaseURL resolves relative segment locations. Optional.
	BaseURL string
}

// Decode turns an encoded manifest into a Manifest for the requested tier.
// It performs no I/O.
func Decode(enc Encoded, q model.Quality) (*Manifest, error) {
	raw, err := decodeBlob(enc.Data)
	if err != nil {
		return nil, decodeError(enc.MimeType, ErrMalformed, err)
	}

	typ := strings.ToLower(strings.TrimSpace(enc.MimeType))
	if typ == "" {
		typ = sniff(raw)
	}

	var m *Manifest
	switch typ {
	case MimeDASH:
		m, err = decodeDASH(raw, q, enc.BaseURL)
	case MimeBTS:
		m, err = decodeBTS(raw)
	case MimeHLS, "audio/mpegurl", "application/x-mpegurl":
		typ = MimeHLS
		m, err = decodeHLS(raw, enc.BaseURL)
	default:
		return nil, decodeError(enc.MimeType, ErrUnsupportedType, typ)
	}
	if err != nil {
		return nil, err
	}

	m.Type = typ
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeBlob accepts standard or URL base64, padded or not, and falls back
// to the raw text when the payload is already plain.
func decodeBlob(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, errors.New("empty manifest")
	}
	if looksPlain([]byte(data)) {
		return []byte(data), nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if out, err := enc.DecodeString(data); err == nil {
			return out, nil
		}
	}
	return nil, errors.New("manifest is neither base64 nor plain text")
}

func looksPlain(b []byte) bool {
	b = bytes.TrimSpace(b)
	return bytes.HasPrefix(b, []byte("<")) || bytes.HasPrefix(b, []byte("{")) || bytes.HasPrefix(b, []byte("#EXTM3U"))
}

func sniff(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	switch {
	case bytes.HasPrefix(raw, []byte("{")):
		return MimeBTS
	case bytes.HasPrefix(raw, []byte("#EXTM3U")):
		return MimeHLS
	case bytes.HasPrefix(raw, []byte("<")):
		return MimeDASH
	}
	return ""
}
