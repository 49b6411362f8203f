package audio

import (
	"bytes"
	"strconv"

	"github.com/zhaarey/go-mp4tag"

	"github.com/handiism/tidal-downloader/internal/model"
)

// mp4DeleteKeys names the atoms cleared by TagEmpty.
var mp4DeleteKeys = map[fieldID]string{
	fieldTitle:       "title",
	fieldArtist:      "artist",
	fieldAlbumArtist: "album_artist",
	fieldAlbum:       "album",
	fieldDate:        "date",
	fieldTrackNumber: "track_number",
	fieldTrackTotal:  "track_total",
	fieldDiscNumber:  "disc_number",
	fieldDiscTotal:   "disc_total",
	fieldCopyright:   "copyright",
	fieldGenre:       "genre",
	fieldComment:     "comment",
}

const mp4DeleteCover = "pictures"

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// saveMP4 writes iTunes-style atoms, including the covr picture, to an
// MP4 file.
func (t *Tagger) saveMP4(path string, md *model.Metadata) error {
	tags := &mp4tag.MP4Tags{Custom: map[string]string{}}
	var del []string

	for _, f := range t.fields(md) {
		switch f.action {
		case TagEmpty:
			if key, ok := mp4DeleteKeys[f.id]; ok {
				del = append(del, key)
			}
		case TagModify:
			if f.value != "" {
				setMP4(tags, f.id, f.value)
			}
		}
	}

	switch t.coverAction(md) {
	case TagEmpty:
		del = append(del, mp4DeleteCover)
	case TagModify:
		tags.Pictures = []*mp4tag.MP4Picture{{Format: mp4ImageType(md.Cover), Data: md.Cover}}
	}

	mp4, err := mp4tag.Open(path)
	if err != nil {
		return err
	}
	defer mp4.Close()
	return mp4.Write(tags, del)
}

func setMP4(tags *mp4tag.MP4Tags, id fieldID, value string) {
	switch id {
	case fieldTitle:
		tags.Title = value
	case fieldArtist:
		tags.Artist = value
	case fieldAlbumArtist:
		tags.AlbumArtist = value
	case fieldAlbum:
		tags.Album = value
	case fieldDate:
		tags.Date = value
	case fieldYear:
		if tags.Date == "" {
			tags.Date = value
		}
	case fieldTrackNumber:
		tags.TrackNumber = atoi16(value)
	case fieldTrackTotal:
		tags.TrackTotal = atoi16(value)
	case fieldDiscNumber:
		tags.DiscNumber = atoi16(value)
	case fieldDiscTotal:
		tags.DiscTotal = atoi16(value)
	case fieldCopyright:
		tags.Copyright = value
	case fieldGenre:
		tags.CustomGenre = value
	case fieldISRC:
		tags.Custom["ISRC"] = value
	}
}

func mp4ImageType(data []byte) mp4tag.ImageType {
	if bytes.HasPrefix(data, pngMagic) {
		return mp4tag.ImageTypePNG
	}
	return mp4tag.ImageTypeJPEG
}

func atoi16(s string) int16 {
	n, _ := strconv.Atoi(s)
	return int16(n)
}
