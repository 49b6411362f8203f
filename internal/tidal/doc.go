// Package tidal provides access to the Tidal catalogue and playback API.
//
// The package covers three concerns:
//
//  1. Session handling: a bearer token given on the command line or cached
//     in a JSON token file for up to an hour
//  2. Catalogue lookups: albums (with paged track listings), single tracks
//     and artist discographies
//  3. Playback: the encoded stream manifest of a track and the metadata
//     embedded into the finished file
//
// # Basic Usage
//
//	session, err := tidal.NewSession(ctx, tidal.SessionConfig{
//	    Token:       os.Getenv("TIDAL_TOKEN"),
//	    TokenFile:   "tidal_token.json",
//	    CountryCode: "US",
//	})
//	client := tidal.NewClient(httpClient, session, tidal.Config{PathConfig: pc, TrackConfig: tc})
//
//	ref, _ := tidal.ParseRef("https://tidal.com/browse/album/77646168")
//	albums, err := client.Resolve(ctx, ref)
//
// # Errors
//
// A 401 response invalidates the session and yields model.ErrAuthExpired.
// A 403 or 404 on playback yields *model.ContentUnavailableError.
package tidal
