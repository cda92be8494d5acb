package video

import (
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// H.264 NAL unit types that mark a decodable frame.
const (
	nalIDR = 5
	nalSPS = 7
)

// Frame is one H.264 access unit in Annex-B form.
type Frame struct {
	Data      []byte `json:"-"`
	Keyframe  bool   `json:"keyframe"`
	Timestamp uint32 `json:"timestamp"`
	Seq       uint64 `json:"seq"`
}

// FrameSink depacketizes an H.264 track into access units and fans them out
// to subscribers. Slow subscribers miss frames rather than stall the track.
type FrameSink struct {
	mu      sync.Mutex
	depack  codecs.H264Packet
	buf     []byte
	ts      uint32
	seq     uint64
	lastKey *Frame
	subs    map[chan Frame]struct{}
	dropped uint64
}

// NewFrameSink creates an empty FrameSink.
func NewFrameSink() *FrameSink {
	return &FrameSink{subs: make(map[chan Frame]struct{})}
}

// Subscribe returns a channel of frames and a function that cancels it.
func (f *FrameSink) Subscribe(buffer int) (<-chan Frame, func()) {
	ch := make(chan Frame, buffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			if _, ok := f.subs[ch]; ok {
				delete(f.subs, ch)
				close(ch)
			}
			f.mu.Unlock()
		})
	}
}

// Attach implements Sink.
func (f *FrameSink) Attach(TrackInfo) {
	f.mu.Lock()
	f.reset()
	f.mu.Unlock()
}

// WriteRTP implements Sink.
func (f *FrameSink) WriteRTP(pkt *rtp.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.buf) > 0 && pkt.Timestamp != f.ts {
		// Marker bit was lost; the timestamp moved on.
		f.flush()
	}
	if len(pkt.Payload) == 0 {
		return nil
	}

	nals, err := f.depack.Unmarshal(pkt.Payload)
	if err != nil {
		f.buf = f.buf[:0]
		return err
	}
	f.ts = pkt.Timestamp
	f.buf = append(f.buf, nals...)
	if pkt.Marker {
		f.flush()
	}
	return nil
}

// Detach implements Sink.
func (f *FrameSink) Detach() {
	f.mu.Lock()
	f.reset()
	f.mu.Unlock()
}

// LastKeyframe returns the most recent keyframe of the current track.
func (f *FrameSink) LastKeyframe() (Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastKey == nil {
		return Frame{}, false
	}
	return *f.lastKey, true
}

// Dropped returns how many frame deliveries were skipped for full subscribers.
func (f *FrameSink) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func (f *FrameSink) reset() {
	f.depack = codecs.H264Packet{}
	f.buf = nil
	f.lastKey = nil
}

func (f *FrameSink) flush() {
	if len(f.buf) == 0 {
		return
	}
	f.seq++
	frame := Frame{
		Data:      append([]byte(nil), f.buf...),
		Keyframe:  isKeyframe(f.buf),
		Timestamp: f.ts,
		Seq:       f.seq,
	}
	f.buf = f.buf[:0]

	if frame.Keyframe {
		k := frame
		f.lastKey = &k
	}
	for ch := range f.subs {
		select {
		case ch <- frame:
		default:
			f.dropped++
		}
	}
}

// isKeyframe reports whether an Annex-B access unit carries an IDR slice or SPS.
func isKeyframe(au []byte) bool {
	for _, t := range nalTypes(au) {
		if t == nalIDR || t == nalSPS {
			return true
		}
	}
	return false
}

// nalTypes lists the NAL unit types found after each start code.
func nalTypes(au []byte) []uint8 {
	var types []uint8
	for i := 0; i+3 < len(au); i++ {
		if au[i] != 0 || au[i+1] != 0 {
			continue
		}
		switch {
		case au[i+2] == 1:
			types = append(types, au[i+3]&0x1F)
			i += 2
		case au[i+2] == 0 && i+4 < len(au) && au[i+3] == 1:
			types = append(types, au[i+4]&0x1F)
			i += 3
		}
	}
	return types
}
