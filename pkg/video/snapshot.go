package video

import (
	"fmt"
	"os"

	"gocv.io/x/gocv"
)

// KeyframeSource supplies the latest decodable access unit.
type KeyframeSource interface {
	LastKeyframe() (Frame, bool)
}

// Snapshotter decodes the last keyframe to a JPEG still.
type Snapshotter struct {
	src KeyframeSource
	dir string
}

// NewSnapshotter creates a Snapshotter reading from src. Temporary files go
// to the system temp directory.
func NewSnapshotter(src KeyframeSource) *Snapshotter {
	return &Snapshotter{src: src}
}

// JPEG returns the last keyframe encoded as JPEG.
func (s *Snapshotter) JPEG() ([]byte, error) {
	frame, ok := s.src.LastKeyframe()
	if !ok {
		return nil, ErrNoFrame
	}

	// The decoder backend reads from a file, not memory.
	tmp, err := os.CreateTemp(s.dir, "snapshot-*.h264")
	if err != nil {
		return nil, fmt.Errorf("snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(frame.Data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("snapshot temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("snapshot temp file: %w", err)
	}

	vc, err := gocv.VideoCaptureFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer vc.Close()

	img := gocv.NewMat()
	defer img.Close()
	if !vc.Read(&img) || img.Empty() {
		return nil, ErrDecode
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
