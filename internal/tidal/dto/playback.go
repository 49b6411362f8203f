package dto

// PlaybackInfo is the /v1/tracks/{id}/playbackinfo document.
type PlaybackInfo struct {
	TrackID           ID     `json:"trackId"`
	AssetPresentation string `json:"assetPresentation"`
	AudioMode         string `json:"audioMode"`
	AudioQuality      string `json:"audioQuality"`
	ManifestMimeType  string `json:"manifestMimeType"`
	ManifestHash      string `json:"manifestHash"`
	Manifest          string `json:"manifest"`
	BitDepth          int    `json:"bitDepth"`
	SampleRate        int    `json:"sampleRate"`
}

// APIError is the error body the API returns with 4xx responses.
type APIError struct {
	Status      int    `json:"status"`
	SubStatus   int    `json:"subStatus"`
	UserMessage string `json:"userMessage"`
}
