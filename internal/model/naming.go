package model

import (
	"regexp"
	"strings"
)

// maxNamedArtists is the number of artists above which a credit collapses
// to VariousArtists.
const maxNamedArtists = 4

// VariousArtists is used in place of long artist credits.
const VariousArtists = "Various Artists"

var featPattern = regexp.MustCompile(`(?i)\s*[\(\[](?:feat\.?|ft\.?|featuring)\s+([^\)\]]+)[\)\]]`)

// ArtistDisplayName joins artist names for display and file naming.
func ArtistDisplayName(artists []string) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a = strings.TrimSpace(a); a != "" {
			names = append(names, a)
		}
	}

	switch {
	case len(names) == 0:
		return "Unknown Artist"
	case len(names) > maxNamedArtists:
		return VariousArtists
	case len(names) == 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " & " + names[len(names)-1]
	}
}

// CleanTitle strips "(feat. X)" style suffixes from title when every
// featured name is already credited in artists.
func CleanTitle(title string, artists []string) string {
	credited := make(map[string]bool, len(artists))
	for _, a := range artists {
		credited[strings.ToLower(strings.TrimSpace(a))] = true
	}

	cleaned := featPattern.ReplaceAllStringFunc(title, func(m string) string {
		sub := featPattern.FindStringSubmatch(m)
		for _, name := range splitFeatured(sub[1]) {
			if !credited[strings.ToLower(name)] {
				return m
			}
		}
		return ""
	})
	return strings.TrimSpace(cleaned)
}

func splitFeatured(s string) []string {
	s = strings.NewReplacer(" & ", ",", " and ", ",", " x ", ",").Replace(s)
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
