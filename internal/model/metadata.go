package model

// Metadata holds the descriptive fields embedded into a finished track.
//
// Every field is optional. Zero values mean "absent" and the matching tag
// is omitted rather than written empty.
type Metadata struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	TrackNumber int
	TrackTotal  int
	DiscNumber  int
	DiscTotal   int
	Year        int
	// Date is the full release date as YYYY-MM-DD, when known.
	Date      string
	ISRC      string
	Copyright string
	Genre     string

	// Cover is the front cover image, JPEG-encoded.
	Cover []byte
}

// MetadataFromTrack builds the catalogue part of the metadata for a track.
// Cover bytes are left for the caller to fill.
func MetadataFromTrack(t *Track) *Metadata {
	md := &Metadata{
		Title:       t.DisplayTitle(),
		Artist:      t.Artist(),
		TrackNumber: t.Number,
		DiscNumber:  t.DiscNumber,
		ISRC:        t.ISRC,
		Copyright:   t.Copyright,
	}
	if a := t.Album; a != nil {
		md.AlbumArtist = a.Artist
		md.Album = a.Title
		md.TrackTotal = a.NumberOfTracks
		md.DiscTotal = a.NumberOfVolumes
		md.Year = a.Year()
		if !a.ReleaseDate.IsZero() {
			md.Date = a.ReleaseDate.Format("2006-01-02")
		}
		if md.Copyright == "" {
			md.Copyright = a.Copyright
		}
	}
	return md
}
