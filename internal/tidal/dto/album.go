package dto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/handiism/tidal-downloader/internal/model"
)

// ReleaseDate is a calendar date as the catalogue serialises it:
// "2006-01-02", occasionally a full RFC 3339 timestamp, or null.
type ReleaseDate struct {
	time.Time
}

// UnmarshalJSON accepts "2006-01-02", RFC 3339 and empty values.
func (d *ReleaseDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}

	for _, format := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05.000-0700"} {
		if t, err := time.Parse(format, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("unable to parse date: %s", s)
}

// ID is a catalogue identifier that may arrive as a JSON number or string.
type ID string

// UnmarshalJSON accepts both 123 and "123".
func (id *ID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = ID(s)
	return nil
}

// Artist is an artist credit.
type Artist struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Album is the /v1/albums/{id} document.
type Album struct {
	ID              ID           `json:"id"`
	Title           string       `json:"title"`
	Cover           string       `json:"cover"`
	ReleaseDate     *ReleaseDate `json:"releaseDate"`
	NumberOfTracks  int          `json:"numberOfTracks"`
	NumberOfVolumes int          `json:"numberOfVolumes"`
	Copyright       string       `json:"copyright"`
	Explicit        bool         `json:"explicit"`
	AudioQuality    string       `json:"audioQuality"`
	Artist          *Artist      `json:"artist"`
	Artists         []Artist     `json:"artists"`
}

// AlbumItems is one page of /v1/albums/{id}/items.
type AlbumItems struct {
	Limit              int        `json:"limit"`
	Offset             int        `json:"offset"`
	TotalNumberOfItems int        `json:"totalNumberOfItems"`
	Items              []ItemWrap `json:"items"`
}

// ItemWrap wraps one album item. Type is "track" or "video".
type ItemWrap struct {
	Type string `json:"type"`
	Item Track  `json:"item"`
}

// ArtistAlbums is one page of /v1/artists/{id}/albums.
type ArtistAlbums struct {
	Limit              int     `json:"limit"`
	Offset             int     `json:"offset"`
	TotalNumberOfItems int     `json:"totalNumberOfItems"`
	Items              []Album `json:"items"`
}

// ArtistNames returns the credited artist names, main artists first.
func (a *Album) ArtistNames() []string {
	return artistNames(a.Artists, a.Artist)
}

// ToAlbum converts the album document to a model.Album without tracks.
func (a *Album) ToAlbum(pathCfg *model.PathConfig) *model.Album {
	info := model.AlbumInfo{
		ID:              string(a.ID),
		Artists:         a.ArtistNames(),
		Title:           a.Title,
		CoverID:         a.Cover,
		NumberOfVolumes: a.NumberOfVolumes,
		NumberOfTracks:  a.NumberOfTracks,
		Copyright:       a.Copyright,
	}
	if a.ReleaseDate != nil {
		info.ReleaseDate = a.ReleaseDate.Time
	}
	return model.NewAlbum(info, pathCfg)
}

func artistNames(artists []Artist, fallback *Artist) []string {
	var main, rest []string
	seen := make(map[string]bool)
	for _, ar := range artists {
		if ar.Name == "" || seen[ar.Name] {
			continue
		}
		seen[ar.Name] = true
		if strings.EqualFold(ar.Type, "MAIN") || ar.Type == "" {
			main = append(main, ar.Name)
		} else {
			rest = append(rest, ar.Name)
		}
	}
	names := append(main, rest...)
	if len(names) == 0 && fallback != nil && fallback.Name != "" {
		names = []string{fallback.Name}
	}
	return names
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// Int returns the numeric value of id, or 0.
func (id ID) Int() int64 {
	n, _ := strconv.ParseInt(string(id), 10, 64)
	return n
}
