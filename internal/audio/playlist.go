package audio

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/handiism/tidal-downloader/internal/model"
)

// PlaylistEntry is one finished track and where it was written.
type PlaylistEntry struct {
	Track *model.Track

	// FilePath is the final path of the track, extension included.
	FilePath string
}

// PlaylistCreator generates playlist files in various formats.
//
// Entries are written relative to the playlist's own directory so the
// album folder can be moved as a whole.
//
// Example:
//
//	creator := NewPlaylistCreator(model.PlaylistFormatM3U, true)
//	content := creator.CreatePlaylist(album, entries)
//
//	// #EXTM3U
//	// #EXTINF:180,Artist - Song Title
//	// 01. Artist - Song Title.flac
type PlaylistCreator struct {
	format   model.PlaylistFormat
	extended bool // For M3U: include EXTINF lines with duration/title
}

// NewPlaylistCreator creates a new PlaylistCreator.
//
// extended only affects M3U, where it adds #EXTINF lines.
func NewPlaylistCreator(format model.PlaylistFormat, extended bool) *PlaylistCreator {
	return &PlaylistCreator{
		format:   format,
		extended: extended,
	}
}

// Format returns the playlist format generated.
func (p *PlaylistCreator) Format() model.PlaylistFormat { return p.format }

// CreatePlaylist generates playlist content listing entries, in order,
// for album.
func (p *PlaylistCreator) CreatePlaylist(album *model.Album, entries []PlaylistEntry) string {
	switch p.format {
	case model.PlaylistFormatPLS:
		return p.createPLS(album, entries)
	case model.PlaylistFormatWPL:
		return p.createWPL(album, entries)
	case model.PlaylistFormatZPL:
		return p.createZPL(album, entries)
	default:
		return p.createM3U(album, entries)
	}
}

// relPath returns the entry path as seen from the playlist file.
func relPath(album *model.Album, e PlaylistEntry) string {
	if album.PlaylistPath != "" {
		if rel, err := filepath.Rel(filepath.Dir(album.PlaylistPath), e.FilePath); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(e.FilePath)
}

// createM3U generates an M3U playlist.
//
//	#EXTM3U
//	#EXTINF:180,Artist - Title
//	filename1.flac
func (p *PlaylistCreator) createM3U(album *model.Album, entries []PlaylistEntry) string {
	var sb strings.Builder

	if p.extended {
		sb.WriteString("#EXTM3U\n")
	}

	for _, e := range entries {
		if p.extended {
			sb.WriteString(fmt.Sprintf("#EXTINF:%d,%s - %s\n", int(e.Track.Duration), e.Track.Artist(), e.Track.DisplayTitle()))
		}
		sb.WriteString(relPath(album, e) + "\n")
	}

	return sb.String()
}

// createPLS generates an INI-style PLS playlist.
func (p *PlaylistCreator) createPLS(album *model.Album, entries []PlaylistEntry) string {
	var sb strings.Builder

	sb.WriteString("[playlist]\n")

	for i, e := range entries {
		idx := i + 1
		sb.WriteString(fmt.Sprintf("File%d=%s\n", idx, relPath(album, e)))
		sb.WriteString(fmt.Sprintf("Title%d=%s\n", idx, e.Track.DisplayTitle()))
		sb.WriteString(fmt.Sprintf("Length%d=%d\n", idx, int(e.Track.Duration)))
	}

	sb.WriteString(fmt.Sprintf("NumberOfEntries=%d\n", len(entries)))
	sb.WriteString("Version=2\n")

	return sb.String()
}

// createWPL generates a Windows Media Player playlist.
func (p *PlaylistCreator) createWPL(album *model.Album, entries []PlaylistEntry) string {
	var sb strings.Builder

	sb.WriteString("<?wpl version=\"1.0\"?>\n")
	sb.WriteString("<smil>\n")
	sb.WriteString("  <head>\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", escapeXML(album.Title)))
	sb.WriteString("  </head>\n")
	sb.WriteString("  <body>\n")
	sb.WriteString("    <seq>\n")

	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("      <media src=\"%s\"/>\n", escapeXML(relPath(album, e))))
	}

	sb.WriteString("    </seq>\n")
	sb.WriteString("  </body>\n")
	sb.WriteString("</smil>\n")

	return sb.String()
}

// createZPL generates a Zune playlist, which is WPL plus per-track
// attributes.
func (p *PlaylistCreator) createZPL(album *model.Album, entries []PlaylistEntry) string {
	var sb strings.Builder

	sb.WriteString("<?zpl version=\"2.0\"?>\n")
	sb.WriteString("<smil>\n")
	sb.WriteString("  <head>\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", escapeXML(album.Title)))
	sb.WriteString("    <meta name=\"Generator\" content=\"tidal-downloader\"/>\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"ItemCount\" content=\"%d\"/>\n", len(entries)))
	sb.WriteString("  </head>\n")
	sb.WriteString("  <body>\n")
	sb.WriteString("    <seq>\n")

	for _, e := range entries {
		duration := time.Duration(e.Track.Duration * float64(time.Second))
		sb.WriteString(fmt.Sprintf("      <media src=\"%s\" albumTitle=\"%s\" albumArtist=\"%s\" trackTitle=\"%s\" trackArtist=\"%s\" duration=\"%d\"/>\n",
			escapeXML(relPath(album, e)),
			escapeXML(album.Title),
			escapeXML(album.Artist),
			escapeXML(e.Track.DisplayTitle()),
			escapeXML(e.Track.Artist()),
			duration.Milliseconds()))
	}

	sb.WriteString("    </seq>\n")
	sb.WriteString("  </body>\n")
	sb.WriteString("</smil>\n")

	return sb.String()
}

// escapeXML escapes & < > " and ' for attribute and text content.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
