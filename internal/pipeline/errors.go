package pipeline

import "errors"

// Stitching and artifact error taxonomy. Planner and generator errors live
// in the services package; these cover the pipeline's own stages.
var (
	// ErrInsufficientInput: fewer than two scene videos exist. Raised before
	// any clip is downloaded.
	ErrInsufficientInput = errors.New("not enough scene videos to stitch")

	// ErrDownload: fetching a scene clip for stitching failed.
	ErrDownload = errors.New("scene clip download failed")

	// ErrTranscode: ffmpeg concatenation failed.
	ErrTranscode = errors.New("video concatenation failed")

	// ErrStorage: uploading an artifact to object storage failed.
	ErrStorage = errors.New("artifact upload failed")

	// ErrMetadataWrite: the artifact was stored but its database record could
	// not be written. Best-effort — callers log it and carry on.
	ErrMetadataWrite = errors.New("metadata write failed")
)
