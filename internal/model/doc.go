// Package model defines the core data structures used throughout
// the tidal-downloader application.
//
// # Album
//
// Album represents a release with metadata and computed file paths:
//
//	album := model.NewAlbum(model.AlbumInfo{ID: id, Artists: artists, Title: title}, pathConfig)
//	fmt.Println(album.Path)        // Where to save the album
//	fmt.Println(album.ArtworkPath) // Where to save cover art
//
// # Track
//
// Track represents a single track within an album. Its Path is a stem;
// the extension is picked from the stream container:
//
//	track := model.NewTrack(album, model.TrackInfo{ID: "42", Number: 1, Title: "Song"}, trackConfig)
//	fmt.Println(track.FilePath(".flac"))
//
// # Path Configuration
//
// Available placeholders: {artist}, {album}, {title}, {tracknum}, {discnum}, {year}, {month}, {day}
//
// Multi-volume albums put each track in a "Volume N" subfolder.
//
// # Errors
//
// ErrAuthExpired and ContentUnavailableError are the errors collaborators
// (session, manifest source) use to signal non-retryable conditions.
package model
