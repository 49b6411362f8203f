package dto

import (
	"github.com/handiism/tidal-downloader/internal/model"
)

// Track is the /v1/tracks/{id} document, also embedded in album items.
type Track struct {
	ID           ID       `json:"id"`
	Title        string   `json:"title"`
	Version      *string  `json:"version"`
	Duration     int      `json:"duration"`
	TrackNumber  int      `json:"trackNumber"`
	VolumeNumber int      `json:"volumeNumber"`
	ISRC         string   `json:"isrc"`
	Copyright    string   `json:"copyright"`
	Explicit     bool     `json:"explicit"`
	StreamReady  *bool    `json:"streamReady"`
	AudioQuality string   `json:"audioQuality"`
	Artist       *Artist  `json:"artist"`
	Artists      []Artist `json:"artists"`
	Album        *struct {
		ID    ID     `json:"id"`
		Title string `json:"title"`
		Cover string `json:"cover"`
	} `json:"album"`
}

// Streamable reports whether the track can be played. Absent means yes.
func (t *Track) Streamable() bool {
	return t.StreamReady == nil || *t.StreamReady
}

// ToTrack converts the document to a model.Track of album.
func (t *Track) ToTrack(album *model.Album, trackCfg *model.TrackConfig) *model.Track {
	info := model.TrackInfo{
		ID:         string(t.ID),
		Number:     t.TrackNumber,
		DiscNumber: t.VolumeNumber,
		Title:      t.Title,
		Artists:    artistNames(t.Artists, t.Artist),
		Duration:   float64(t.Duration),
		ISRC:       t.ISRC,
		Copyright:  t.Copyright,
		Explicit:   t.Explicit,
	}
	if t.Version != nil {
		info.Version = *t.Version
	}
	return model.NewTrack(album, info, trackCfg)
}
