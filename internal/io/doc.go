// Package ioutils provides file system and image processing utilities.
//
// # File Operations
//
//	// Write a file without ever exposing a partial write
//	err := ioutils.WriteFileAtomic(ctx, "/music/Artist - Album/cover.jpg", data)
//
//	// Ensure directory exists
//	err := ioutils.EnsureDir("/path/to/new/directory")
//
// # Filename Sanitization
//
//	safe := ioutils.SanitizeFileName("Song: Part 1/2") // Returns "Song_ Part 1_2"
//
// # Image Processing
//
// The ImageService prepares cover art for tags and folder files:
//
//	svc := ioutils.NewImageService()
//	jpeg, _ := svc.Prepare(ctx, raw, ioutils.CoverOptions{Resize: true, MaxSize: 1000, JPEG: true})
package ioutils
