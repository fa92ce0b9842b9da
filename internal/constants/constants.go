// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Gallery constants
const (
	// DefaultGalleryDir is the directory holding enrolled reference images
	DefaultGalleryDir = "authorized_faces"

	// DefaultEnrollPrefix is the file name prefix used when no person name is given
	DefaultEnrollPrefix = "face"

	// EnrollJPEGQuality is the JPEG quality used for enrolled images
	EnrollJPEGQuality = 95

	// DefaultDuplicateDistance is the maximum dHash Hamming distance at which an
	// enrollment is considered a duplicate of an existing entry
	DefaultDuplicateDistance = 4
)

// Identification constants
const (
	// DefaultIdentifyTopK is the default number of nearest gallery entries to report
	DefaultIdentifyTopK = 5

	// HNSWMaxNeighbors is the M parameter of the gallery index graph
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the candidate list size used during index search
	HNSWEfSearch = 64
)

// Capture constants
const (
	// DefaultScaleFactor is the cascade detector image pyramid scale
	DefaultScaleFactor = 1.3

	// DefaultMinNeighbors is the number of neighbor detections a face needs to be kept
	DefaultMinNeighbors = 5

	// PreviewWindowTitle is the title of the camera preview window
	PreviewWindowTitle = "face-gate"

	// FaceWindowTitle is the title of the window showing the detected face crop
	FaceWindowTitle = "face-gate: face"

	// KeyPollInterval is how long the preview window waits for a key press per frame
	KeyPollInterval = 1 * time.Millisecond

	// FaceTrackIoU is the overlap at which detections in consecutive frames are the same face
	FaceTrackIoU = 0.3
)

// Indicator constants
const (
	// DefaultHold is how long an authorization result stays on the indicators
	DefaultHold = 4 * time.Second

	// DefaultAuthorizedPin drives the green (authorized) indicator
	DefaultAuthorizedPin = "GPIO18"

	// DefaultDeniedPin drives the red (denied) indicator
	DefaultDeniedPin = "GPIO17"
)
