package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/zhaarey/go-mp4tag"

	"github.com/handiism/tidal-downloader/internal/manifest"
)

func mp4Box(typ string, children ...[]byte) []byte {
	payload := bytes.Join(children, nil)
	b := binary.BigEndian.AppendUint32(nil, uint32(8+len(payload)))
	b = append(b, typ...)
	return append(b, payload...)
}

func mp4FullBox(typ string, flags uint32, payload ...[]byte) []byte {
	return mp4Box(typ, append([][]byte{binary.BigEndian.AppendUint32(nil, flags)}, payload...)...)
}

func u32(vs ...uint32) []byte {
	var b []byte
	for _, v := range vs {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	return b
}

func identityMatrix() []byte {
	return u32(0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000)
}

// minimalMP4 is a single empty audio track followed by its mdat.
func minimalMP4() []byte {
	ftyp := mp4Box("ftyp", []byte("M4A "), u32(0), []byte("M4A isommp42"))

	moov := func(chunkOffset uint32) []byte {
		mvhd := mp4FullBox("mvhd", 0,
			u32(0, 0, 1000, 0, 0x00010000), []byte{0x01, 0x00}, make([]byte, 10),
			identityMatrix(), make([]byte, 24), u32(2))
		tkhd := mp4FullBox("tkhd", 7,
			u32(0, 0, 1, 0, 0), make([]byte, 8), []byte{0, 0, 0, 0, 0x01, 0x00, 0, 0},
			identityMatrix(), u32(0, 0))
		mdhd := mp4FullBox("mdhd", 0, u32(0, 0, 44100, 0), []byte{0x55, 0xc4, 0, 0})
		hdlr := mp4FullBox("hdlr", 0, u32(0), []byte("soun"), make([]byte, 12), []byte{0})
		dinf := mp4Box("dinf", mp4FullBox("dref", 0, u32(1), mp4FullBox("url ", 1)))
		stbl := mp4Box("stbl",
			mp4FullBox("stsd", 0, u32(0)),
			mp4FullBox("stts", 0, u32(0)),
			mp4FullBox("stsc", 0, u32(0)),
			mp4FullBox("stsz", 0, u32(0, 0)),
			mp4FullBox("stco", 0, u32(1, chunkOffset)),
		)
		minf := mp4Box("minf", mp4FullBox("smhd", 0, u32(0)), dinf, stbl)
		return mp4Box("moov", mvhd, mp4Box("trak", tkhd, mp4Box("mdia", mdhd, hdlr, minf)))
	}

	offset := uint32(len(ftyp) + len(moov(0)) + 8)
	mdat := mp4Box("mdat", bytes.Repeat([]byte{0xAB}, 16))

	out := append([]byte{}, ftyp...)
	out = append(out, moov(offset)...)
	return append(out, mdat...)
}

func TestTagger_SaveTagsMP4(t *testing.T) {
	path := writeTemp(t, "track.m4a", minimalMP4())
	md := testMetadata()

	if err := NewTagger(nil).SaveTags(path, manifest.ContainerMP4, md); err != nil {
		t.Fatalf("SaveTags() error = %v", err)
	}

	mp4, err := mp4tag.Open(path)
	if err != nil {
		t.Fatalf("mp4tag.Open() error = %v", err)
	}
	defer mp4.Close()
	tags, err := mp4.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if tags.Title != "Joga" {
		t.Errorf("Title = %q, want %q", tags.Title, "Joga")
	}
	if tags.Album != "Homogenic" {
		t.Errorf("Album = %q, want %q", tags.Album, "Homogenic")
	}
	if tags.TrackNumber != 2 || tags.TrackTotal != 10 {
		t.Errorf("track = %d/%d, want 2/10", tags.TrackNumber, tags.TrackTotal)
	}
	if len(tags.Pictures) != 1 {
		t.Fatalf("got %d pictures, want 1", len(tags.Pictures))
	}
	if !bytes.Equal(tags.Pictures[0].Data, md.Cover) {
		t.Error("embedded cover differs from the metadata cover")
	}
}

func TestMP4ImageType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want mp4tag.ImageType
	}{
		{"jpeg", testJPEG(), mp4tag.ImageTypeJPEG},
		{"png", append(append([]byte{}, pngMagic...), 0, 0), mp4tag.ImageTypePNG},
		{"unknown", []byte("gif"), mp4tag.ImageTypeJPEG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mp4ImageType(tt.data); got != tt.want {
				t.Errorf("mp4ImageType() = %v, want %v", got, tt.want)
			}
		})
	}
}
