package manifest

import (
	"strings"

	"github.com/handiism/tidal-downloader/internal/model"
)

type codecFamily int

const (
	familyUnsupported codecFamily = iota
	familyAAC
	familyLossless
	familyMP3
)

func familyOf(codec string) codecFamily {
	c := strings.ToLower(strings.TrimSpace(codec))
	switch {
	case c == "flac" || c == "alac":
		return familyLossless
	case c == "mp3" || c == "mpga" || c == "mp4a.40.34" || c == "mp4a.6b":
		return familyMP3
	case strings.HasPrefix(c, "mp4a.40."):
		return familyAAC
	}
	return familyUnsupported
}

// preferredFamily returns the codec family a tier asks for.
func preferredFamily(q model.Quality) codecFamily {
	if q.Lossless() {
		return familyLossless
	}
	return familyAAC
}

// containerOf maps a media mime type and codec to the output container.
func containerOf(mimeType, codec string) Container {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "audio/flac", "audio/x-flac":
		return ContainerFLAC
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "video/mp4":
		return ContainerMP4
	case "audio/mpeg", "audio/mp3":
		return ContainerMPEG
	case "video/mp2t", "audio/mp2t":
		return ContainerTS
	}
	if familyOf(codec) == familyMP3 {
		return ContainerMPEG
	}
	return ContainerUnknown
}

// codecFromMime infers a codec when the envelope leaves it empty.
func codecFromMime(mimeType string) string {
	switch containerOf(mimeType, "") {
	case ContainerFLAC:
		return "flac"
	case ContainerMPEG:
		return "mp3"
	}
	return ""
}
