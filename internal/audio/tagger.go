package audio

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/bogem/id3v2"

	"github.com/handiism/tidal-downloader/internal/manifest"
	"github.com/handiism/tidal-downloader/internal/model"
)

// ErrUnsupportedContainer is returned by SaveTags for containers that
// carry no tag block, such as MPEG transport streams.
var ErrUnsupportedContainer = errors.New("container does not support tags")

// TagEditAction defines how to handle an individual tag field.
//
// Each field can be configured independently to determine whether
// it should be written, cleared, or left unchanged.
type TagEditAction int

const (
	// TagEmpty removes the field from the file.
	TagEmpty TagEditAction = iota

	// TagModify writes the field from the catalogue metadata.
	// Fields the catalogue does not know are left out.
	TagModify

	// TagDoNotModify leaves the existing field unchanged.
	TagDoNotModify
)

// ParseTagEditAction maps a settings value ("empty", "modify", "keep")
// to a TagEditAction.
func ParseTagEditAction(s string) (TagEditAction, error) {
	switch s {
	case "empty":
		return TagEmpty, nil
	case "modify", "":
		return TagModify, nil
	case "keep":
		return TagDoNotModify, nil
	}
	return TagModify, fmt.Errorf("unknown tag action %q", s)
}

// String returns the settings spelling of the action.
func (a TagEditAction) String() string {
	switch a {
	case TagEmpty:
		return "empty"
	case TagDoNotModify:
		return "keep"
	default:
		return "modify"
	}
}

// TagConfig holds the edit action of every tag field.
//
// The same configuration applies to FLAC, MP4 and MP3 outputs; each
// format maps the fields onto its own frames or atoms.
//
// Example:
//
//	cfg := &TagConfig{
//	    ModifyTags:  true,
//	    Artist:      TagModify,
//	    Album:       TagModify,
//	    TrackTitle:  TagModify,
//	    Comments:    TagEmpty,
//	    AlbumArtist: TagDoNotModify,
//	}
type TagConfig struct {
	// ModifyTags is a master switch. If false, no text field is touched.
	ModifyTags bool

	Artist      TagEditAction
	AlbumArtist TagEditAction
	Album       TagEditAction
	TrackTitle  TagEditAction

	// Year is the four-digit release year (TYER on MP3).
	Year TagEditAction

	// Date is the full release date (TDRC on MP3, DATE on FLAC).
	Date TagEditAction

	// TrackNumber also covers the track total when known.
	TrackNumber TagEditAction

	// DiscNumber also covers the disc total when known.
	DiscNumber TagEditAction

	ISRC      TagEditAction
	Copyright TagEditAction
	Genre     TagEditAction
	Comments  TagEditAction

	// Cover controls the embedded front cover picture.
	Cover TagEditAction
}

// DefaultTagConfig returns the default tag configuration: every field
// is written from the catalogue and comments are cleared.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{
		ModifyTags:  true,
		Artist:      TagModify,
		AlbumArtist: TagModify,
		Album:       TagModify,
		TrackTitle:  TagModify,
		Year:        TagModify,
		Date:        TagModify,
		TrackNumber: TagModify,
		DiscNumber:  TagModify,
		ISRC:        TagModify,
		Copyright:   TagModify,
		Genre:       TagModify,
		Comments:    TagEmpty,
		Cover:       TagModify,
	}
}

// fieldID names a tag field independently of the file format.
type fieldID int

const (
	fieldTitle fieldID = iota
	fieldArtist
	fieldAlbumArtist
	fieldAlbum
	fieldYear
	fieldDate
	fieldTrackNumber
	fieldTrackTotal
	fieldDiscNumber
	fieldDiscTotal
	fieldISRC
	fieldCopyright
	fieldGenre
	fieldComment
)

// textField is one resolved edit: what to do with which value.
type textField struct {
	id     fieldID
	action TagEditAction
	value  string
}

// Tagger embeds metadata into finished tracks.
//
// The container decides the backend:
//   - FLAC: Vorbis comments and a METADATA_BLOCK_PICTURE
//   - MP4: iTunes-style ilst atoms
//   - MP3: ID3v2 frames
//
// Example:
//
//	tagger := NewTagger(DefaultTagConfig())
//	err := tagger.SaveTags(staged.Path(), m.Container, md)
type Tagger struct {
	config *TagConfig
}

// NewTagger creates a new Tagger with the given configuration.
//
// If config is nil, DefaultTagConfig() is used.
func NewTagger(config *TagConfig) *Tagger {
	if config == nil {
		config = DefaultTagConfig()
	}
	return &Tagger{config: config}
}

// Config returns the configuration the tagger applies.
func (t *Tagger) Config() *TagConfig { return t.config }

// SaveTags writes md into the file at path, which holds a stream of
// container c. A nil md writes nothing.
func (t *Tagger) SaveTags(path string, c manifest.Container, md *model.Metadata) error {
	if md == nil {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("tag %s: %w", path, err)
	}

	var err error
	switch c {
	case manifest.ContainerFLAC:
		err = t.saveFLAC(path, md)
	case manifest.ContainerMP4:
		err = t.saveMP4(path, md)
	case manifest.ContainerMPEG:
		err = t.saveID3(path, md)
	default:
		return fmt.Errorf("tag %s (%s): %w", path, c, ErrUnsupportedContainer)
	}
	if err != nil {
		return fmt.Errorf("tag %s: %w", path, err)
	}
	return nil
}

// fields resolves the configured action for every text field.
// Nothing is returned when ModifyTags is off.
func (t *Tagger) fields(md *model.Metadata) []textField {
	if !t.config.ModifyTags {
		return nil
	}
	cfg := t.config
	return []textField{
		{fieldTitle, cfg.TrackTitle, md.Title},
		{fieldArtist, cfg.Artist, md.Artist},
		{fieldAlbumArtist, cfg.AlbumArtist, md.AlbumArtist},
		{fieldAlbum, cfg.Album, md.Album},
		{fieldYear, cfg.Year, itoa(md.Year)},
		{fieldDate, cfg.Date, md.Date},
		{fieldTrackNumber, cfg.TrackNumber, itoa(md.TrackNumber)},
		{fieldTrackTotal, cfg.TrackNumber, itoa(md.TrackTotal)},
		{fieldDiscNumber, cfg.DiscNumber, itoa(md.DiscNumber)},
		{fieldDiscTotal, cfg.DiscNumber, itoa(md.DiscTotal)},
		{fieldISRC, cfg.ISRC, md.ISRC},
		{fieldCopyright, cfg.Copyright, md.Copyright},
		{fieldGenre, cfg.Genre, md.Genre},
		{fieldComment, cfg.Comments, ""},
	}
}

// coverAction resolves what happens to the embedded picture.
// TagModify without cover bytes leaves the file alone.
func (t *Tagger) coverAction(md *model.Metadata) TagEditAction {
	if t.config.Cover == TagModify && len(md.Cover) == 0 {
		return TagDoNotModify
	}
	return t.config.Cover
}

func itoa(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// id3Frames maps fields onto ID3v2 frame IDs. Track and disc totals
// share their frame with the number and are handled separately.
var id3Frames = map[fieldID]string{
	fieldTitle:       "TIT2",
	fieldArtist:      "TPE1",
	fieldAlbumArtist: "TPE2",
	fieldAlbum:       "TALB",
	fieldYear:        "TYER",
	fieldDate:        "TDRC",
	fieldISRC:        "TSRC",
	fieldCopyright:   "TCOP",
	fieldGenre:       "TCON",
}

// saveID3 writes ID3v2 frames to an MP3 file.
func (t *Tagger) saveID3(path string, md *model.Metadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	for _, f := range t.fields(md) {
		switch f.id {
		case fieldTrackNumber:
			setID3(tag, "TRCK", f.action, joinTotal(md.TrackNumber, md.TrackTotal))
		case fieldDiscNumber:
			setID3(tag, "TPOS", f.action, joinTotal(md.DiscNumber, md.DiscTotal))
		case fieldTrackTotal, fieldDiscTotal:
		case fieldComment:
			if f.action == TagEmpty {
				tag.DeleteFrames(tag.CommonID("Comments"))
			}
		default:
			setID3(tag, id3Frames[f.id], f.action, f.value)
		}
	}

	switch t.coverAction(md) {
	case TagEmpty:
		tag.DeleteFrames(tag.CommonID("Attached picture"))
	case TagModify:
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     md.Cover,
		})
	}

	return tag.Save()
}

func setID3(tag *id3v2.Tag, frame string, action TagEditAction, value string) {
	switch action {
	case TagEmpty:
		tag.DeleteFrames(frame)
	case TagModify:
		if value != "" {
			tag.DeleteFrames(frame)
			tag.AddTextFrame(frame, id3v2.EncodingUTF8, value)
		}
	}
}

// joinTotal formats "n/total", or just "n" when the total is unknown.
func joinTotal(n, total int) string {
	if n <= 0 {
		return ""
	}
	if total <= 0 {
		return strconv.Itoa(n)
	}
	return strconv.Itoa(n) + "/" + strconv.Itoa(total)
}
