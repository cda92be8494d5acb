package video

import (
	"sync"

	"github.com/pion/rtp"
)

// TrackInfo describes an inbound video track.
type TrackInfo struct {
	SessionID string `json:"session_id"`
	TrackID   string `json:"track_id"`
	StreamID  string `json:"stream_id"`
	MimeType  string `json:"mime_type"`
	SSRC      uint32 `json:"ssrc"`
}

// Sink is the display side of the video feed. Attach is called when a video
// track arrives, WriteRTP for every packet, Detach when the session ends.
type Sink interface {
	Attach(info TrackInfo)
	WriteRTP(pkt *rtp.Packet) error
	Detach()
}

// MultiSink fans a track out to several sinks. Write errors from one sink do
// not stop the others; the first error is returned.
type MultiSink []Sink

// Attach implements Sink.
func (m MultiSink) Attach(info TrackInfo) {
	for _, s := range m {
		s.Attach(info)
	}
}

// WriteRTP implements Sink.
func (m MultiSink) WriteRTP(pkt *rtp.Packet) error {
	var first error
	for _, s := range m {
		if err := s.WriteRTP(pkt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Detach implements Sink.
func (m MultiSink) Detach() {
	for _, s := range m {
		s.Detach()
	}
}

// Display tracks whether the feed is populated, the way a video element
// switches from its empty placeholder to the live stream.
type Display struct {
	mu       sync.RWMutex
	info     TrackInfo
	attached bool
	packets  uint64
}

// Attach implements Sink.
func (d *Display) Attach(info TrackInfo) {
	d.mu.Lock()
	d.info = info
	d.attached = true
	d.packets = 0
	d.mu.Unlock()
}

// WriteRTP implements Sink.
func (d *Display) WriteRTP(*rtp.Packet) error {
	d.mu.Lock()
	d.packets++
	d.mu.Unlock()
	return nil
}

// Detach implements Sink.
func (d *Display) Detach() {
	d.mu.Lock()
	d.attached = false
	d.info = TrackInfo{}
	d.mu.Unlock()
}

// Populated reports whether a track is attached, with its info and packet count.
func (d *Display) Populated() (TrackInfo, uint64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info, d.packets, d.attached
}
