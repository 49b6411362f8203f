package audio

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2"
	flac "github.com/go-flac/go-flac"
	"github.com/go-flac/flacvorbis"

	"github.com/handiism/tidal-downloader/internal/manifest"
	"github.com/handiism/tidal-downloader/internal/model"
)

func testMetadata() *model.Metadata {
	return &model.Metadata{
		Title:       "Joga",
		Artist:      "Björk",
		AlbumArtist: "Björk",
		Album:       "Homogenic",
		TrackNumber: 2,
		TrackTotal:  10,
		DiscNumber:  1,
		Year:        1997,
		Date:        "1997-09-22",
		ISRC:        "GBAAA9700001",
		Cover:       testJPEG(),
	}
}

func testJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// minimalFLAC is a stream marker plus an empty STREAMINFO block.
func minimalFLAC() []byte {
	b := []byte("fLaC")
	b = append(b, 0x80, 0x00, 0x00, 0x22)
	return append(b, make([]byte, 34)...)
}

func TestTagger_SaveTagsID3(t *testing.T) {
	path := writeTemp(t, "track.mp3", bytes.Repeat([]byte{0x00}, 64))

	tagger := NewTagger(nil)
	if err := tagger.SaveTags(path, manifest.ContainerMPEG, testMetadata()); err != nil {
		t.Fatalf("SaveTags() error = %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("id3v2.Open() error = %v", err)
	}
	defer tag.Close()

	if got := tag.Title(); got != "Joga" {
		t.Errorf("Title() = %q, want %q", got, "Joga")
	}
	if got := tag.Album(); got != "Homogenic" {
		t.Errorf("Album() = %q, want %q", got, "Homogenic")
	}
	if got := tag.GetTextFrame("TRCK").Text; got != "2/10" {
		t.Errorf("TRCK = %q, want %q", got, "2/10")
	}
	if got := tag.GetTextFrame("TSRC").Text; got != "GBAAA9700001" {
		t.Errorf("TSRC = %q, want %q", got, "GBAAA9700001")
	}
	if frames := tag.GetFrames(tag.CommonID("Attached picture")); len(frames) != 1 {
		t.Errorf("got %d pictures, want 1", len(frames))
	}
	if frames := tag.GetFrames("TCON"); len(frames) != 0 {
		t.Error("empty genre should not be written")
	}
}

func TestTagger_SaveTagsID3Actions(t *testing.T) {
	path := writeTemp(t, "track.mp3", bytes.Repeat([]byte{0x00}, 64))
	if err := NewTagger(nil).SaveTags(path, manifest.ContainerMPEG, testMetadata()); err != nil {
		t.Fatalf("SaveTags() error = %v", err)
	}

	cfg := DefaultTagConfig()
	cfg.TrackTitle = TagEmpty
	cfg.Album = TagDoNotModify
	cfg.Cover = TagEmpty
	md := testMetadata()
	md.Album = "Other"

	if err := NewTagger(cfg).SaveTags(path, manifest.ContainerMPEG, md); err != nil {
		t.Fatalf("SaveTags() error = %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("id3v2.Open() error = %v", err)
	}
	defer tag.Close()

	if got := tag.Title(); got != "" {
		t.Errorf("Title() = %q, want empty", got)
	}
	if got := tag.Album(); got != "Homogenic" {
		t.Errorf("Album() = %q, want unchanged %q", got, "Homogenic")
	}
	if frames := tag.GetFrames(tag.CommonID("Attached picture")); len(frames) != 0 {
		t.Errorf("got %d pictures, want 0", len(frames))
	}
}

func TestTagger_SaveTagsFLAC(t *testing.T) {
	path := writeTemp(t, "track.flac", minimalFLAC())

	if err := NewTagger(nil).SaveTags(path, manifest.ContainerFLAC, testMetadata()); err != nil {
		t.Fatalf("SaveTags() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	f, err := flac.ParseBytes(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}

	var cmt *flacvorbis.MetaDataBlockVorbisComment
	pictures := 0
	for _, meta := range f.Meta {
		switch meta.Type {
		case flac.VorbisComment:
			cmt, err = flacvorbis.ParseFromMetaDataBlock(*meta)
			if err != nil {
				t.Fatalf("ParseFromMetaDataBlock() error = %v", err)
			}
		case flac.Picture:
			pictures++
		}
	}
	if cmt == nil {
		t.Fatal("no vorbis comment block written")
	}
	if pictures != 1 {
		t.Errorf("got %d picture blocks, want 1", pictures)
	}

	tests := map[string]string{
		flacvorbis.FIELD_TITLE:       "Joga",
		flacvorbis.FIELD_ALBUM:       "Homogenic",
		flacvorbis.FIELD_TRACKNUMBER: "2",
		"TRACKTOTAL":                 "10",
		flacvorbis.FIELD_DATE:        "1997-09-22",
	}
	for key, want := range tests {
		got, err := cmt.Get(key)
		if err != nil || len(got) != 1 || got[0] != want {
			t.Errorf("Get(%s) = %v, %v; want [%s]", key, got, err, want)
		}
	}
}

func TestTagger_SaveTagsFLACReplaces(t *testing.T) {
	path := writeTemp(t, "track.flac", minimalFLAC())
	tagger := NewTagger(nil)

	for i := 0; i < 2; i++ {
		if err := tagger.SaveTags(path, manifest.ContainerFLAC, testMetadata()); err != nil {
			t.Fatalf("SaveTags() #%d error = %v", i, err)
		}
	}

	raw, _ := os.ReadFile(path)
	f, err := flac.ParseBytes(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	comments, pictures := 0, 0
	for _, meta := range f.Meta {
		switch meta.Type {
		case flac.VorbisComment:
			comments++
			cmt, _ := flacvorbis.ParseFromMetaDataBlock(*meta)
			if got, _ := cmt.Get(flacvorbis.FIELD_TITLE); len(got) != 1 {
				t.Errorf("TITLE has %d values, want 1", len(got))
			}
		case flac.Picture:
			pictures++
		}
	}
	if comments != 1 || pictures != 1 {
		t.Errorf("got %d comment and %d picture blocks, want 1 and 1", comments, pictures)
	}
}

func TestTagger_SaveTagsUnsupported(t *testing.T) {
	path := writeTemp(t, "track.ts", []byte{0x47})

	err := NewTagger(nil).SaveTags(path, manifest.ContainerTS, testMetadata())
	if !errors.Is(err, ErrUnsupportedContainer) {
		t.Errorf("SaveTags() error = %v, want ErrUnsupportedContainer", err)
	}
}

func TestTagger_SaveTagsNilMetadata(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 16)
	path := writeTemp(t, "track.mp3", data)

	if err := NewTagger(nil).SaveTags(path, manifest.ContainerMPEG, nil); err != nil {
		t.Fatalf("SaveTags() error = %v", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, data) {
		t.Error("file changed with nil metadata")
	}
}

func TestTagger_SaveTagsMissingFile(t *testing.T) {
	err := NewTagger(nil).SaveTags(filepath.Join(t.TempDir(), "nope.flac"), manifest.ContainerFLAC, testMetadata())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("SaveTags() error = %v, want os.ErrNotExist", err)
	}
}

func TestParseTagEditAction(t *testing.T) {
	tests := []struct {
		in      string
		want    TagEditAction
		wantErr bool
	}{
		{"empty", TagEmpty, false},
		{"modify", TagModify, false},
		{"", TagModify, false},
		{"keep", TagDoNotModify, false},
		{"bogus", TagModify, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTagEditAction(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTagEditAction(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTagEditAction(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestJoinTotal(t *testing.T) {
	tests := []struct {
		n, total int
		want     string
	}{
		{0, 10, ""},
		{3, 0, "3"},
		{3, 12, "3/12"},
	}
	for _, tt := range tests {
		if got := joinTotal(tt.n, tt.total); got != tt.want {
			t.Errorf("joinTotal(%d, %d) = %q, want %q", tt.n, tt.total, got, tt.want)
		}
	}
}
