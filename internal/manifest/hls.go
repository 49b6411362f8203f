package manifest

import (
	"bytes"
	"path"
	"strings"

	"github.com/grafov/m3u8"
)

func decodeHLS(raw []byte, baseURL string) (*Manifest, error) {
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(raw), true)
	if err != nil {
		return nil, decodeError(MimeHLS, ErrMalformed, err)
	}
	if listType != m3u8.MEDIA {
		return nil, decodeError(MimeHLS, ErrUnsupportedType, "master playlist")
	}
	media := playlist.(*m3u8.MediaPlaylist)

	if encrypted(media.Key) {
		return nil, decodeError(MimeHLS, ErrUnsupportedCodec, "encrypted stream")
	}

	initMap := media.Map
	if initMap == nil {
		for _, seg := range media.Segments {
			if seg != nil {
				initMap = seg.Map
				break
			}
		}
	}

	m := &Manifest{}
	if initMap != nil && initMap.URI != "" {
		m.Segments = append(m.Segments, rangedRef(0, resolve(baseURL, initMap.URI), initMap.Offset, initMap.Limit))
		m.Container = ContainerMP4
		m.MimeType = "audio/mp4"
	}

	var prev *SegmentRef
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		if encrypted(seg.Key) {
			return nil, decodeError(MimeHLS, ErrUnsupportedCodec, "encrypted segment")
		}

		location := resolve(baseURL, seg.URI)
		offset := seg.Offset
		// A byte range without an offset continues the previous sub-range.
		if seg.Limit > 0 && offset == 0 && prev != nil && prev.Range != nil && prev.URL == location {
			offset = prev.Range.Offset + prev.Range.Length
		}
		m.Segments = append(m.Segments, rangedRef(len(m.Segments), location, offset, seg.Limit))
		prev = &m.Segments[len(m.Segments)-1]
	}

	if m.Container == ContainerUnknown && len(m.Segments) > 0 {
		m.Container, m.MimeType, m.Codec = hlsContainer(m.Segments[0].URL)
	}
	if m.Container == ContainerUnknown {
		return nil, decodeError(MimeHLS, ErrUnsupportedCodec, "unrecognised segment format")
	}
	return m, nil
}

func rangedRef(index int, location string, offset, limit int64) SegmentRef {
	ref := SegmentRef{Index: index, URL: location}
	if limit > 0 {
		ref.Range = &ByteRange{Offset: offset, Length: limit}
		ref.ExpectedLength = limit
	}
	return ref
}

func encrypted(k *m3u8.Key) bool {
	if k == nil {
		return false
	}
	method := strings.ToUpper(strings.TrimSpace(k.Method))
	return method != "" && method != "NONE"
}

// hlsContainer guesses the container from a segment file extension.
func hlsContainer(location string) (Container, string, string) {
	p := location
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".ts":
		return ContainerTS, "video/mp2t", "mp4a.40.2"
	case ".mp3":
		return ContainerMPEG, "audio/mpeg", "mp3"
	case ".m4s", ".mp4", ".m4a":
		return ContainerMP4, "audio/mp4", ""
	case ".flac":
		return ContainerFLAC, "audio/flac", "flac"
	}
	return ContainerUnknown, "", ""
}
