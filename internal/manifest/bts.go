package manifest

import (
	"encoding/json"
	"strings"
)

// btsManifest is the single-file envelope: one stream, mirrored URLs.
type btsManifest struct {
	MimeType       string   `json:"mimeType"`
	Codecs         string   `json:"codecs"`
	EncryptionType string   `json:"encryptionType"`
	KeyID          string   `json:"keyId"`
	URLs           []string `json:"urls"`
}

func decodeBTS(raw []byte) (*Manifest, error) {
	var bts btsManifest
	if err := json.Unmarshal(raw, &bts); err != nil {
		return nil, decodeError(MimeBTS, ErrMalformed, err)
	}

	if enc := strings.ToUpper(strings.TrimSpace(bts.EncryptionType)); enc != "" && enc != "NONE" {
		return nil, decodeError(MimeBTS, ErrUnsupportedCodec, "encrypted stream ("+bts.EncryptionType+")")
	}

	codec := bts.Codecs
	if codec == "" {
		codec = codecFromMime(bts.MimeType)
	}
	if familyOf(codec) == familyUnsupported {
		return nil, decodeError(MimeBTS, ErrUnsupportedCodec, codec)
	}

	var urls []string
	for _, u := range bts.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, decodeError(MimeBTS, ErrNoSegments, nil)
	}

	container := containerOf(bts.MimeType, codec)
	if container == ContainerUnknown {
		return nil, decodeError(MimeBTS, ErrUnsupportedCodec, "mime type "+bts.MimeType)
	}

	return &Manifest{
		MimeType:  bts.MimeType,
		Codec:     codec,
		Container: container,
		Segments: []SegmentRef{{
			Index:   0,
			URL:     urls[0],
			Mirrors: urls[1:],
		}},
	}, nil
}
