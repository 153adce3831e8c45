// Package model contains simple struct definitions shared across packages.
package model

// StorageFinalizeEvent describes a newly finalized object in the site
// content bucket. It is produced by the storage notification layer and
// consumed exactly once by the transcode worker.
type StorageFinalizeEvent struct {
	ObjectPath  string            `json:"object_path"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Rendition is one quality tier of the adaptive stream. Bitrates use
// ffmpeg's "Nk" notation so they can be passed to the encoder verbatim.
type Rendition struct {
	Name         string
	Width        int
	Height       int
	VideoBitrate string
	AudioBitrate string
}

// Renditions is the fixed ladder encoded for every job, highest tier
// first. The order determines enumeration order in the master playlist.
var Renditions = []Rendition{
	{Name: "720p", Width: 1280, Height: 720, VideoBitrate: "2800k", AudioBitrate: "128k"},
	{Name: "480p", Width: 854, Height: 480, VideoBitrate: "1400k", AudioBitrate: "128k"},
	{Name: "360p", Width: 640, Height: 360, VideoBitrate: "800k", AudioBitrate: "96k"},
}

// MediaStatus is written into business records during reconciliation.
type MediaStatus string

const (
	StatusReady MediaStatus = "ready"
	StatusError MediaStatus = "error"
)

// MediaKindHLS marks records whose media URL points at an HLS master
// playlist rather than a plain progressive file.
const MediaKindHLS = "hls"
