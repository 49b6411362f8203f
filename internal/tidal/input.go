package tidal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoAlbumFound is returned when an artist has no albums.
var ErrNoAlbumFound = errors.New("no album found")

// Kind is what an input reference points at.
type Kind int

const (
	KindAlbum Kind = iota
	KindTrack
	KindArtist
)

func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindArtist:
		return "artist"
	default:
		return "album"
	}
}

// Ref identifies a catalogue item given on the command line.
type Ref struct {
	Kind Kind
	ID   string
}

func (r Ref) String() string { return r.Kind.String() + ":" + r.ID }

var (
	refURL  = regexp.MustCompile(`(?i)tidal\.com/(?:browse/)?(album|track|artist)/(\d+)`)
	refPair = regexp.MustCompile(`(?i)^(album|track|artist):(\d+)$`)
	refBare = regexp.MustCompile(`^\d+$`)
)

// ParseRef parses one input. Accepted forms:
//
//	https://tidal.com/browse/album/77646168
//	https://listen.tidal.com/track/77646170
//	album:77646168, track:77646170, artist:3346
//	77646168 (an album id)
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if m := refURL.FindStringSubmatch(s); m != nil {
		return Ref{Kind: parseKind(m[1]), ID: m[2]}, nil
	}
	if m := refPair.FindStringSubmatch(s); m != nil {
		return Ref{Kind: parseKind(m[1]), ID: m[2]}, nil
	}
	if refBare.MatchString(s) {
		return Ref{Kind: KindAlbum, ID: s}, nil
	}
	return Ref{}, fmt.Errorf("unrecognised input %q", s)
}

// ParseRefs parses whitespace- or comma-separated inputs. Duplicates are
// dropped; invalid inputs are returned alongside the valid ones.
func ParseRefs(input string) ([]Ref, []error) {
	var (
		refs []Ref
		errs []error
	)
	seen := make(map[Ref]bool)
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	for _, f := range fields {
		ref, err := ParseRef(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs, errs
}

func parseKind(s string) Kind {
	switch strings.ToLower(s) {
	case "track":
		return KindTrack
	case "artist":
		return KindArtist
	default:
		return KindAlbum
	}
}
