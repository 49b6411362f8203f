// Package audio embeds metadata into finished tracks and writes album
// playlists.
//
// # Tagging
//
// The Tagger picks its backend from the stream container:
//
//	tagger := audio.NewTagger(audio.DefaultTagConfig())
//	err := tagger.SaveTags(path, manifest.ContainerFLAC, md)
//
//   - FLAC: Vorbis comments and an embedded front cover
//   - MP4: iTunes atoms (the cover stays a sidecar file)
//   - MP3: ID3v2 frames and an embedded front cover
//
// Transport streams carry no tags; SaveTags returns
// ErrUnsupportedContainer for them.
//
// # Playlist Generation
//
//	creator := audio.NewPlaylistCreator(model.PlaylistFormatM3U, true)
//	content := creator.CreatePlaylist(album, entries)
//
// Supported formats:
//   - M3U (with optional extended info)
//   - PLS
//   - WPL (Windows Media Player)
//   - ZPL (Zune Media Player)
package audio
