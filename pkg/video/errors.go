package video

import "errors"

// Sentinel errors for negotiation.
var (
	// ErrNoSession is returned when an operation needs a live session.
	ErrNoSession = errors.New("video: no active session")

	// ErrSessionActive is returned by Start while a session exists.
	ErrSessionActive = errors.New("video: session already active")

	// ErrSessionClosed is returned when a session is torn down mid-negotiation.
	ErrSessionClosed = errors.New("video: session closed during negotiation")

	// ErrEmptyAnswer is returned when the controller answered with no SDP.
	ErrEmptyAnswer = errors.New("video: empty answer")

	// ErrNoFrame is returned by Snapshot before a keyframe has arrived.
	ErrNoFrame = errors.New("video: no keyframe received yet")

	// ErrDecode is returned when a keyframe cannot be decoded to an image.
	ErrDecode = errors.New("video: keyframe decode failed")
)
