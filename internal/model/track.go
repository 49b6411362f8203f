package model

import (
	"fmt"
	"path/filepath"
	"strings"

	ioutils "github.com/handiism/tidal-downloader/internal/io"
)

// Track represents a single track within an album.
//
// The output extension depends on the container the manifest declares,
// so Track only carries the path stem. Use FilePath to build the final
// path once the container is known.
//
// Example:
//
//	cfg := &TrackConfig{FileNameFormat: "{tracknum}. {artist} - {title}"}
//	track := NewTrack(album, TrackInfo{ID: "42", Number: 1, Title: "Joga"}, cfg)
//	track.FilePath(".flac") // "/music/Björk - Homogenic/01. Björk - Joga.flac"
type Track struct {
	// Album is a reference to the parent album.
	Album *Album

	// ID is the catalogue identifier of the track.
	ID string

	// Number is the track number within its volume (1-indexed).
	Number int

	// DiscNumber is the volume the track belongs to (1-indexed).
	DiscNumber int

	// Title is the track title as published.
	Title string

	// Version is the optional version label, e.g. "Remastered 2011".
	Version string

	// Artists lists the track's credited artists in credit order.
	Artists []string

	// Duration is the track length in seconds.
	Duration float64

	// ISRC is the International Standard Recording Code.
	ISRC string

	// Copyright is the track-level copyright line.
	Copyright string

	// Explicit marks tracks flagged as explicit content.
	Explicit bool

	// Path is the computed local file path without extension.
	Path string
}

// TrackInfo carries the catalogue fields NewTrack needs.
type TrackInfo struct {
	ID         string
	Number     int
	DiscNumber int
	Title      string
	Version    string
	Artists    []string
	Duration   float64
	ISRC       string
	Copyright  string
	Explicit   bool
}

// TrackConfig holds track path formatting settings.
//
// The FileNameFormat supports placeholders that are replaced with actual values:
//   - {tracknum} - Track number (2 digits, zero-padded)
//   - {discnum} - Volume number
//   - {title} - Track title with version, e.g. "Song (Live)"
//   - {artist} - Track artist display name
//   - {album} - Album title
//   - {year}, {month}, {day} - Release date components
//
// The extension is not part of the format; it is chosen from the stream container.
type TrackConfig struct {
	FileNameFormat string
}

// NewTrack creates a new Track with computed path stem.
func NewTrack(album *Album, info TrackInfo, cfg *TrackConfig) *Track {
	track := &Track{
		Album:      album,
		ID:         info.ID,
		Number:     info.Number,
		DiscNumber: info.DiscNumber,
		Title:      info.Title,
		Version:    info.Version,
		Artists:    info.Artists,
		Duration:   info.Duration,
		ISRC:       info.ISRC,
		Copyright:  info.Copyright,
		Explicit:   info.Explicit,
	}
	if track.DiscNumber == 0 {
		track.DiscNumber = 1
	}

	track.Path = track.parseFilePath(cfg)

	return track
}

// Artist returns the display name of the track artists, falling back to
// the album artist.
func (t *Track) Artist() string {
	if len(t.Artists) == 0 {
		return t.Album.Artist
	}
	return ArtistDisplayName(t.Artists)
}

// DisplayTitle returns the cleaned title with the version label appended.
func (t *Track) DisplayTitle() string {
	title := CleanTitle(t.Title, t.Artists)
	if t.Version != "" && !strings.Contains(strings.ToLower(title), strings.ToLower(t.Version)) {
		title = fmt.Sprintf("%s (%s)", title, t.Version)
	}
	return title
}

// FilePath returns the output path for the given extension (including the dot).
func (t *Track) FilePath(ext string) string {
	return t.Path + ext
}

// parseFilePath computes the file path stem for this track.
func (t *Track) parseFilePath(cfg *TrackConfig) string {
	dir := t.Album.Path
	if t.Album.MultiVolume() {
		dir = filepath.Join(dir, fmt.Sprintf("Volume %d", t.DiscNumber))
	}

	fileName := t.parseFileName(cfg)
	filePath := filepath.Join(dir, fileName)

	// Limit total path length for Windows compatibility (MAX_PATH = 260),
	// leaving room for the longest extension we write.
	const extRoom = 5
	if len(filePath)+extRoom >= 260 {
		maxLen := 259 - len(dir) - 1 - extRoom
		if maxLen > 0 && maxLen < len(fileName) {
			filePath = filepath.Join(dir, fileName[:maxLen])
		}
	}

	return filePath
}

// parseFileName computes the filename from the config template.
func (t *Track) parseFileName(cfg *TrackConfig) string {
	// {artist} refers to the track artist here, so it is resolved before
	// the album placeholders.
	fileName := strings.ReplaceAll(cfg.FileNameFormat, "{artist}", t.Artist())
	fileName = strings.ReplaceAll(fileName, "{tracknum}", fmt.Sprintf("%02d", t.Number))
	fileName = strings.ReplaceAll(fileName, "{discnum}", fmt.Sprintf("%d", t.DiscNumber))
	fileName = t.Album.replacePlaceholders(fileName, false)
	fileName = strings.ReplaceAll(fileName, "{title}", t.DisplayTitle())
	return ioutils.SanitizeFileName(fileName)
}
