package audio

import (
	"bytes"
	"context"
	"os"
	"strings"

	flac "github.com/go-flac/go-flac"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"

	ioutils "github.com/handiism/tidal-downloader/internal/io"
	"github.com/handiism/tidal-downloader/internal/model"
)

const vorbisVendor = "tidal-downloader"

// vorbisKeys maps fields onto Vorbis comment names.
var vorbisKeys = map[fieldID]string{
	fieldTitle:       flacvorbis.FIELD_TITLE,
	fieldArtist:      flacvorbis.FIELD_ARTIST,
	fieldAlbumArtist: "ALBUMARTIST",
	fieldAlbum:       flacvorbis.FIELD_ALBUM,
	fieldYear:        "YEAR",
	fieldDate:        flacvorbis.FIELD_DATE,
	fieldTrackNumber: flacvorbis.FIELD_TRACKNUMBER,
	fieldTrackTotal:  "TRACKTOTAL",
	fieldDiscNumber:  "DISCNUMBER",
	fieldDiscTotal:   "DISCTOTAL",
	fieldISRC:        flacvorbis.FIELD_ISRC,
	fieldCopyright:   flacvorbis.FIELD_COPYRIGHT,
	fieldGenre:       flacvorbis.FIELD_GENRE,
	fieldComment:     "COMMENT",
}

// saveFLAC rewrites the Vorbis comment and picture blocks of a FLAC file.
func (t *Tagger) saveFLAC(path string, md *model.Metadata) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := flac.ParseBytes(bytes.NewReader(raw))
	if err != nil {
		return err
	}

	cmtIdx := -1
	var cmt *flacvorbis.MetaDataBlockVorbisComment
	for i, meta := range f.Meta {
		if meta.Type == flac.VorbisComment {
			cmt, err = flacvorbis.ParseFromMetaDataBlock(*meta)
			if err != nil {
				return err
			}
			cmtIdx = i
			break
		}
	}
	if cmt == nil {
		cmt = flacvorbis.New()
		cmt.Vendor = vorbisVendor
	}

	for _, fd := range t.fields(md) {
		key := vorbisKeys[fd.id]
		switch fd.action {
		case TagEmpty:
			removeVorbis(cmt, key)
		case TagModify:
			if fd.value == "" {
				continue
			}
			removeVorbis(cmt, key)
			if err := cmt.Add(key, fd.value); err != nil {
				return err
			}
		}
	}

	block := cmt.Marshal()
	if cmtIdx >= 0 {
		f.Meta[cmtIdx] = &block
	} else {
		f.Meta = append(f.Meta, &block)
	}

	switch t.coverAction(md) {
	case TagEmpty:
		f.Meta = withoutPictures(f.Meta)
	case TagModify:
		pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Cover", md.Cover, "image/jpeg")
		if err != nil {
			return err
		}
		picBlock := pic.Marshal()
		f.Meta = append(withoutPictures(f.Meta), &picBlock)
	}

	return ioutils.WriteFileAtomic(context.Background(), path, f.Marshal())
}

// removeVorbis drops every comment named key. Names compare
// case-insensitively.
func removeVorbis(cmt *flacvorbis.MetaDataBlockVorbisComment, key string) {
	prefix := strings.ToUpper(key) + "="
	kept := cmt.Comments[:0]
	for _, c := range cmt.Comments {
		if len(c) >= len(prefix) && strings.ToUpper(c[:len(prefix)]) == prefix {
			continue
		}
		kept = append(kept, c)
	}
	cmt.Comments = kept
}

func withoutPictures(meta []*flac.MetaDataBlock) []*flac.MetaDataBlock {
	kept := meta[:0]
	for _, m := range meta {
		if m.Type != flac.Picture {
			kept = append(kept, m)
		}
	}
	return kept
}
