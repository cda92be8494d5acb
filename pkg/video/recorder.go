package video

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/h264writer"

	"github.com/teslashibe/go-pilot/internal/log"
)

// Recorder writes each session's track to <dir>/<session>.h264.
type Recorder struct {
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	w    *h264writer.H264Writer
	path string
	err  error
}

// NewRecorder creates a Recorder writing into dir.
func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir, logger: log.Component("recorder")}
}

// Attach implements Sink.
func (r *Recorder) Attach(info TrackInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.err = fmt.Errorf("create record dir: %w", err)
		r.logger.Warn("recording disabled", "error", err)
		return
	}
	path := filepath.Join(r.dir, info.SessionID+".h264")
	w, err := h264writer.New(path)
	if err != nil {
		r.err = fmt.Errorf("open recording: %w", err)
		r.logger.Warn("recording disabled", "error", err)
		return
	}
	r.w, r.path, r.err = w, path, nil
	r.logger.Info("recording", "path", path)
}

// WriteRTP implements Sink.
func (r *Recorder) WriteRTP(pkt *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return r.err
	}
	return r.w.WriteRTP(pkt)
}

// Detach implements Sink.
func (r *Recorder) Detach() {
	r.mu.Lock()
	r.closeLocked()
	r.mu.Unlock()
}

// Path returns the file currently being written, if any.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Recorder) closeLocked() {
	if r.w == nil {
		return
	}
	if err := r.w.Close(); err != nil {
		r.logger.Debug("close recording", "error", err)
	}
	r.logger.Info("recording closed", "path", r.path)
	r.w, r.path = nil, ""
}
