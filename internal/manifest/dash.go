package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/handiism/tidal-downloader/internal/model"
)

type mpd struct {
	XMLName                   xml.Name `xml:"MPD"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	BaseURL                   string   `xml:"BaseURL"`
	Periods                   []period `xml:"Period"`
}

type period struct {
	Duration       string          `xml:"duration,attr"`
	BaseURL        string          `xml:"BaseURL"`
	AdaptationSets []adaptationSet `xml:"AdaptationSet"`
}

type adaptationSet struct {
	MimeType        string           `xml:"mimeType,attr"`
	Codecs          string           `xml:"codecs,attr"`
	BaseURL         string           `xml:"BaseURL"`
	SegmentTemplate *segmentTemplate `xml:"SegmentTemplate"`
	Representations []representation `xml:"Representation"`
}

type representation struct {
	ID              string           `xml:"id,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	Codecs          string           `xml:"codecs,attr"`
	Bandwidth       int              `xml:"bandwidth,attr"`
	BaseURL         string           `xml:"BaseURL"`
	SegmentTemplate *segmentTemplate `xml:"SegmentTemplate"`
}

type segmentTemplate struct {
	Initialization string           `xml:"initialization,attr"`
	Media          string           `xml:"media,attr"`
	StartNumber    *int             `xml:"startNumber,attr"`
	Timescale      int64            `xml:"timescale,attr"`
	Duration       int64            `xml:"duration,attr"`
	Timeline       *segmentTimeline `xml:"SegmentTimeline"`
}

type segmentTimeline struct {
	Entries []timelineEntry `xml:"S"`
}

type timelineEntry struct {
	T *int64 `xml:"t,attr"`
	D int64  `xml:"d,attr"`
	R int    `xml:"r,attr"`
}

// candidate is a playable Representation with everything needed to
// expand its segment list.
type candidate struct {
	rep      representation
	codec    string
	mimeType string
	tmpl     *segmentTemplate
	base     string
	family   codecFamily
}

// maxSegments bounds the media segments a single template may expand to.
const maxSegments = 100_000

var templateVar = regexp.MustCompile(`\$(Number|Time|Bandwidth|RepresentationID)(?:%0(\d+)d)?\$|\$\$`)

func decodeDASH(raw []byte, q model.Quality, baseURL string) (*Manifest, error) {
	var doc mpd
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, decodeError(MimeDASH, ErrMalformed, err)
	}
	if len(doc.Periods) == 0 {
		return nil, decodeError(MimeDASH, ErrNoSegments, "no Period")
	}

	total, _ := parseISODuration(doc.MediaPresentationDuration)
	base := resolve(baseURL, doc.BaseURL)

	var sawRepresentation bool
	for _, p := range doc.Periods {
		periodBase := resolve(base, p.BaseURL)
		periodTotal := total
		if d, err := parseISODuration(p.Duration); err == nil && d > 0 {
			periodTotal = d
		}

		var candidates []candidate
		for _, as := range p.AdaptationSets {
			asBase := resolve(periodBase, as.BaseURL)
			for _, rep := range as.Representations {
				sawRepresentation = true
				c := candidate{
					rep:      rep,
					codec:    firstNonEmpty(rep.Codecs, as.Codecs),
					mimeType: firstNonEmpty(rep.MimeType, as.MimeType),
					tmpl:     rep.SegmentTemplate,
					base:     resolve(asBase, rep.BaseURL),
				}
				if c.tmpl == nil {
					c.tmpl = as.SegmentTemplate
				}
				c.family = familyOf(c.codec)
				if c.tmpl == nil || c.family == familyUnsupported {
					continue
				}
				candidates = append(candidates, c)
			}
		}

		best, ok := pickCandidate(candidates, preferredFamily(q))
		if !ok {
			continue
		}

		segments, err := expandTemplate(best, periodTotal)
		if err != nil {
			return nil, decodeError(MimeDASH, ErrMalformed, err)
		}
		return &Manifest{
			MimeType:  best.mimeType,
			Codec:     best.codec,
			Container: dashContainer(best),
			Bandwidth: best.rep.Bandwidth,
			Segments:  segments,
		}, nil
	}

	if sawRepresentation {
		return nil, decodeError(MimeDASH, ErrUnsupportedCodec, "no representation with a supported codec")
	}
	return nil, decodeError(MimeDASH, ErrNoSegments, "no Representation")
}

// pickCandidate prefers the tier's codec family, then the highest bandwidth.
func pickCandidate(cs []candidate, prefer codecFamily) (candidate, bool) {
	var best candidate
	found := false
	for _, c := range cs {
		switch {
		case !found:
		case (c.family == prefer) != (best.family == prefer):
			if c.family != prefer {
				continue
			}
		case c.rep.Bandwidth <= best.rep.Bandwidth:
			continue
		}
		best, found = c, true
	}
	return best, found
}

func dashContainer(c candidate) Container {
	if ct := containerOf(c.mimeType, c.codec); ct != ContainerUnknown {
		return ct
	}
	// DASH audio without a declared mime type is fragmented MP4.
	return ContainerMP4
}

// expandTemplate lists the init segment (when present) followed by every
// media segment the template describes.
func expandTemplate(c candidate, total time.Duration) ([]SegmentRef, error) {
	t := c.tmpl
	if t.Media == "" {
		return nil, errors.New("SegmentTemplate without media attribute")
	}

	start := 1
	if t.StartNumber != nil {
		start = *t.StartNumber
	}
	timescale := t.Timescale
	if timescale <= 0 {
		timescale = 1
	}

	times, err := segmentTimes(t, timescale, total)
	if err != nil {
		return nil, err
	}

	var segments []SegmentRef
	if t.Initialization != "" {
		segments = append(segments, SegmentRef{
			Index: 0,
			URL:   resolve(c.base, fillTemplate(t.Initialization, c.rep, start, 0)),
		})
	}
	for i, at := range times {
		segments = append(segments, SegmentRef{
			Index: len(segments),
			URL:   resolve(c.base, fillTemplate(t.Media, c.rep, start+i, at)),
		})
	}
	return segments, nil
}

// segmentTimes returns the start time (in timescale units) of each media
// segment, from the SegmentTimeline or from a fixed duration.
func segmentTimes(t *segmentTemplate, timescale int64, total time.Duration) ([]int64, error) {
	totalUnits := int64(total.Seconds() * float64(timescale))

	if t.Timeline != nil && len(t.Timeline.Entries) > 0 {
		var times []int64
		var at int64
		for i, s := range t.Timeline.Entries {
			if s.T != nil {
				at = *s.T
			}
			if s.D <= 0 {
				return nil, fmt.Errorf("timeline entry %d has no duration", i)
			}
			repeat := s.R
			if repeat < 0 {
				// Repeat until the next entry's start or the end of the period.
				end := totalUnits
				if i+1 < len(t.Timeline.Entries) && t.Timeline.Entries[i+1].T != nil {
					end = *t.Timeline.Entries[i+1].T
				}
				if end <= at {
					return nil, fmt.Errorf("open-ended timeline entry %d without period duration", i)
				}
				repeat = int(math.Ceil(float64(end-at)/float64(s.D))) - 1
			}
			if repeat >= maxSegments-len(times) {
				return nil, fmt.Errorf("timeline expands to more than %d segments", maxSegments)
			}
			for r := 0; r <= repeat; r++ {
				times = append(times, at)
				at += s.D
			}
		}
		return times, nil
	}

	if t.Duration > 0 && totalUnits > 0 {
		n := math.Ceil(float64(totalUnits) / float64(t.Duration))
		if n > maxSegments {
			return nil, fmt.Errorf("template expands to more than %d segments", maxSegments)
		}
		times := make([]int64, int(n))
		for i := range times {
			times[i] = int64(i) * t.Duration
		}
		return times, nil
	}

	return nil, errors.New("SegmentTemplate has neither timeline nor duration")
}

func fillTemplate(tmpl string, rep representation, number int, at int64) string {
	out := templateVar.ReplaceAllStringFunc(tmpl, func(m string) string {
		if m == "$$" {
			return "$"
		}
		sub := templateVar.FindStringSubmatch(m)
		var v int64
		switch sub[1] {
		case "RepresentationID":
			return rep.ID
		case "Number":
			v = int64(number)
		case "Time":
			v = at
		case "Bandwidth":
			v = int64(rep.Bandwidth)
		}
		if sub[2] != "" {
			width, _ := strconv.Atoi(sub[2])
			return fmt.Sprintf("%0*d", width, v)
		}
		return strconv.FormatInt(v, 10)
	})
	// Some manifests double-escape query strings.
	return strings.ReplaceAll(out, "&amp;", "&")
}

// resolve resolves ref against base. Either may be empty.
func resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == "" {
		return ref
	}
	if ref == "" {
		return base
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// parseISODuration parses the xs:duration subset MPDs use, e.g. "PT3M25.456S".
func parseISODuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0, err
		}
		d += time.Duration(v * float64(unit))
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
