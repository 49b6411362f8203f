package model

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	ioutils "github.com/handiism/tidal-downloader/internal/io"
)

// ImageBaseURL is the public image host for album covers. The cover id
// uses dashes which map to path separators.
const ImageBaseURL = "https://resources.tidal.com/images"

// Album represents a release with its tracks and computed local paths.
//
// Paths are computed when creating an album via NewAlbum, using
// placeholders like {artist}, {album}, {year} etc.
//
// Example:
//
//	cfg := &PathConfig{
//	    DownloadsPath: "/music/{artist} - {album}",
//	    CoverArtFileNameFormat: "cover",
//	    PlaylistFormat: PlaylistFormatM3U,
//	}
//	album := NewAlbum(AlbumInfo{ID: "1", Artists: []string{"Björk"}, Title: "Homogenic"}, cfg)
//	// album.Path = "/music/Björk - Homogenic"
type Album struct {
	// ID is the catalogue identifier of the album.
	ID string

	// Artist is the display name built from Artists.
	Artist string

	// Artists lists the album's main artists in credit order.
	Artists []string

	// Title is the album title.
	Title string

	// CoverID is the image identifier of the front cover.
	// Empty string means no artwork is available.
	CoverID string

	// ReleaseDate is when the album was released.
	ReleaseDate time.Time

	// NumberOfVolumes is the number of discs. Tracks of multi-volume
	// albums are saved in "Volume N" subfolders.
	NumberOfVolumes int

	// NumberOfTracks is the track count as reported by the catalogue.
	NumberOfTracks int

	// Copyright is the album-level copyright line.
	Copyright string

	// Tracks contains all tracks in this album, in album order.
	Tracks []*Track

	// Path is the local directory where album files will be saved.
	Path string

	// ArtworkPath is the local file path for the cover art.
	// Empty if the album has no artwork.
	ArtworkPath string

	// PlaylistPath is the local file path for the playlist file.
	PlaylistPath string
}

// AlbumInfo carries the catalogue fields NewAlbum needs.
type AlbumInfo struct {
	ID              string
	Artists         []string
	Title           string
	CoverID         string
	ReleaseDate     time.Time
	NumberOfVolumes int
	NumberOfTracks  int
	Copyright       string
}

// NewAlbum creates a new Album with computed paths based on settings.
//
// The pathConfig determines how file paths are constructed using placeholders:
//   - {artist} - Artist display name
//   - {album} - Album title
//   - {year} - Release year (4 digits)
//   - {month} - Release month (2 digits, zero-padded)
//   - {day} - Release day (2 digits, zero-padded)
//
// Invalid filename characters are replaced with underscores.
// Paths are truncated if they exceed Windows path length limits (248 for folders, 260 for files).
func NewAlbum(info AlbumInfo, cfg *PathConfig) *Album {
	album := &Album{
		ID:              info.ID,
		Artist:          ArtistDisplayName(info.Artists),
		Artists:         info.Artists,
		Title:           info.Title,
		CoverID:         info.CoverID,
		ReleaseDate:     info.ReleaseDate,
		NumberOfVolumes: info.NumberOfVolumes,
		NumberOfTracks:  info.NumberOfTracks,
		Copyright:       info.Copyright,
	}

	album.Path = album.parseFolderPath(cfg)
	album.PlaylistPath = album.parsePlaylistPath(cfg)
	album.ArtworkPath = album.parseArtworkPath(cfg)

	return album
}

// HasArtwork returns true if the album has cover art available for download.
func (a *Album) HasArtwork() bool {
	return a.CoverID != ""
}

// CoverURL returns the URL of the square cover image with the given edge size.
func (a *Album) CoverURL(size int) string {
	return a.CoverURLAt(ImageBaseURL, size)
}

// CoverURLAt is CoverURL against another image host.
func (a *Album) CoverURLAt(base string, size int) string {
	if !a.HasArtwork() {
		return ""
	}
	return fmt.Sprintf("%s/%s/%dx%d.jpg", strings.TrimRight(base, "/"), strings.ReplaceAll(a.CoverID, "-", "/"), size, size)
}

// Year returns the release year, or 0 when the release date is unknown.
func (a *Album) Year() int {
	if a.ReleaseDate.IsZero() {
		return 0
	}
	return a.ReleaseDate.Year()
}

// MultiVolume reports whether tracks are split in per-volume folders.
func (a *Album) MultiVolume() bool {
	return a.NumberOfVolumes > 1
}

// PathConfig holds path formatting settings for albums and tracks.
//
// All path fields support placeholders that are replaced with actual values:
//   - {artist} - Artist name
//   - {album} - Album title
//   - {year}, {month}, {day} - Release date components
type PathConfig struct {
	// DownloadsPath is the base path template for saving albums.
	// Example: "/music/{artist} - {album}"
	DownloadsPath string

	// CoverArtFileNameFormat is the filename template for cover art (without extension).
	CoverArtFileNameFormat string

	// PlaylistFileNameFormat is the filename template for playlists (without extension).
	PlaylistFileNameFormat string

	// PlaylistFormat determines the playlist file type and extension.
	PlaylistFormat PlaylistFormat
}

// PlaylistFormat represents supported playlist file formats.
type PlaylistFormat int

const (
	// PlaylistFormatM3U creates .m3u playlist files (most widely supported).
	PlaylistFormatM3U PlaylistFormat = iota

	// PlaylistFormatPLS creates .pls playlist files (used by Winamp).
	PlaylistFormatPLS

	// PlaylistFormatWPL creates .wpl playlist files (Windows Media Player).
	PlaylistFormatWPL

	// PlaylistFormatZPL creates .zpl playlist files (Zune Media Player).
	PlaylistFormatZPL
)

// ParsePlaylistFormat maps a settings value to a PlaylistFormat.
// Unknown values fall back to M3U.
func ParsePlaylistFormat(s string) PlaylistFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pls":
		return PlaylistFormatPLS
	case "wpl":
		return PlaylistFormatWPL
	case "zpl":
		return PlaylistFormatZPL
	default:
		return PlaylistFormatM3U
	}
}

// Extension returns the file extension for the playlist format, including the dot.
func (pf PlaylistFormat) Extension() string {
	switch pf {
	case PlaylistFormatM3U:
		return ".m3u"
	case PlaylistFormatPLS:
		return ".pls"
	case PlaylistFormatWPL:
		return ".wpl"
	case PlaylistFormatZPL:
		return ".zpl"
	default:
		return ".m3u"
	}
}

func (a *Album) replacePlaceholders(s string, sanitize bool) string {
	clean := func(v string) string {
		if sanitize {
			return ioutils.SanitizeFileName(v)
		}
		return v
	}
	year, month, day := "", "", ""
	if !a.ReleaseDate.IsZero() {
		year = a.ReleaseDate.Format("2006")
		month = a.ReleaseDate.Format("01")
		day = a.ReleaseDate.Format("02")
	}
	s = strings.ReplaceAll(s, "{year}", clean(year))
	s = strings.ReplaceAll(s, "{month}", clean(month))
	s = strings.ReplaceAll(s, "{day}", clean(day))
	s = strings.ReplaceAll(s, "{artist}", clean(a.Artist))
	s = strings.ReplaceAll(s, "{album}", clean(a.Title))
	return s
}

// parseFolderPath computes the album folder path from the config template.
func (a *Album) parseFolderPath(cfg *PathConfig) string {
	path := a.replacePlaceholders(cfg.DownloadsPath, true)

	// Limit path length for cross-platform compatibility (Windows MAX_PATH)
	if len(path) >= 248 {
		path = path[:247]
	}

	return path
}

// parsePlaylistPath computes the full playlist file path.
func (a *Album) parsePlaylistPath(cfg *PathConfig) string {
	fileName := ioutils.SanitizeFileName(a.replacePlaceholders(cfg.PlaylistFileNameFormat, false))
	return limitFilePath(a.Path, fileName, cfg.PlaylistFormat.Extension())
}

// parseArtworkPath computes the full cover art file path.
// Covers are always stored as JPEG.
func (a *Album) parseArtworkPath(cfg *PathConfig) string {
	if !a.HasArtwork() {
		return ""
	}
	fileName := ioutils.SanitizeFileName(a.replacePlaceholders(cfg.CoverArtFileNameFormat, false))
	return limitFilePath(a.Path, fileName, ".jpg")
}

// limitFilePath joins dir and fileName+ext, shortening the file name when
// the result exceeds the Windows MAX_PATH limit.
func limitFilePath(dir, fileName, ext string) string {
	filePath := filepath.Join(dir, fileName+ext)
	if len(filePath) >= 260 {
		maxLen := 259 - len(dir) - 1 - len(ext)
		if maxLen > 0 && maxLen < len(fileName) {
			filePath = filepath.Join(dir, fileName[:maxLen]+ext)
		}
	}
	return filePath
}
