// Package download provides the download orchestration logic for
// fetching albums and tracks from Tidal.
//
// # Layers
//
// Work is split in three nested layers, each with its own bound:
//
//   - Manager: resolves inputs and runs up to MaxConcurrentAlbumsDownload albums
//   - AlbumScheduler: runs up to MaxConcurrentTracksDownload tracks per album
//   - TrackPipeline: fetches up to MaxConcurrentSegments segments per track
//
// A failed track never cancels its siblings. Every album run ends with a
// full AlbumResult listing each track as succeeded or failed.
//
// # Track Pipeline
//
// Each track moves through
//
//	Queued → Fetching → Assembling → TaggingMetadata → Complete
//
// and any stage may end in Failed. The final file is only renamed into
// place once it is complete and tagged.
//
// # Basic Usage
//
//	manager, err := download.NewManager(settings, download.ManagerOptions{
//	    Catalog:   tidalClient,
//	    Transport: httpClient,
//	    Observer:  download.ObserverFunc(func(e download.Event) { fmt.Println(e.Message) }),
//	})
//
//	err = manager.Initialize(ctx, "https://tidal.com/browse/album/12345")
//	results, err := manager.StartDownloads(ctx)
//
// # Progress Tracking
//
// Pipelines report state transitions as Events: stage changes, stored
// segments, retries, terminal outcomes and album snapshots. Observers
// must not block; AsyncObserver queues events for slow sinks such as a
// terminal UI.
package download
