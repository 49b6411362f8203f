// Package config provides configuration management for tidal-downloader.
//
// This package handles:
//   - Loading and saving settings from JSON or YAML files
//   - Default configuration values
//   - Environment overrides for the session (TIDAL_TOKEN, TIDAL_COUNTRY_CODE)
//   - Conversion to the configs of other packages
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.yaml")
//	if err != nil {
//	    // A missing file is not an error; defaults are used
//	}
//	if err := settings.Validate(); err != nil {
//	    // Every invalid field is listed
//	}
//
// # Saving Settings
//
//	settings.DownloadsPath = "/custom/path/{artist} - {album}"
//	err := settings.Save("/path/to/config.json")
//
// # Configuration Options
//
// Settings includes options for:
//   - Download paths and file naming
//   - Quality tier and concurrency limits for albums, tracks and segments
//   - Retry backoff and request throttling
//   - Cover art handling
//   - Playlist generation
//   - Per-field tag actions
//   - Proxy configuration
package config
