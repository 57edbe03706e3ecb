// Package upload provides the submission pipeline that creates a new record in
// the remote feed. It validates the request, enforces one submission in flight,
// reports a tagged outcome and invalidates the feed cache on success.
package upload

import "errors"

// Sentinel errors for upload pipeline operations.
var (
	// ErrNoAssetUploader indicates that SelectFile was called on a pipeline
	// created without an AssetUploader.
	ErrNoAssetUploader = errors.New("no asset uploader configured")

	// ErrSelectionReplaced indicates that the draft was reset or another file
	// was selected while the asset upload was running. The resolved URL was dropped.
	ErrSelectionReplaced = errors.New("file selection replaced during upload")

	// ErrSubmissionInFlight is carried by a Rejected outcome.
	ErrSubmissionInFlight = errors.New("submission already in flight")
)
