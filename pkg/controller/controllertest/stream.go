package controllertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-pilot/pkg/controller"
)

const (
	// DefaultFrameInterval paces the synthetic stream at 30fps.
	DefaultFrameInterval = time.Second / 30

	// keyframeEvery is the GOP length of the synthetic stream.
	keyframeEvery = 30

	rtpMTU       = 1200
	h264Payload  = 96
	h264Clock    = 90000
	fillerLength = 2048
)

// stream is one answered peer connection pushing synthetic video.
type stream struct {
	pc       *webrtc.PeerConnection
	track    *webrtc.TrackLocalStaticRTP
	cancel   context.CancelFunc
	forceKey atomic.Bool
}

// handleOffer answers a recv-only offer with a send-only H.264 track.
func (s *Server) handleOffer(c *fiber.Ctx) error {
	var offer controller.Description
	if err := json.Unmarshal(c.Body(), &offer); err != nil || offer.SDP == "" {
		s.logger.Warn("bad offer", "error", err)
		s.record(c.Path(), nil, fiber.StatusInternalServerError)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	answer, err := s.answer(offer)
	if err != nil {
		s.logger.Warn("offer failed", "error", err)
		s.record(c.Path(), nil, fiber.StatusInternalServerError)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	s.record(c.Path(), nil, fiber.StatusOK)
	return c.JSON(answer)
}

func (s *Server) answer(offer controller.Description) (controller.Description, error) {
	pc, err := s.newPeerConnection()
	if err != nil {
		return controller.Description{}, fmt.Errorf("new peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: h264Clock},
		"video", "controller-sim",
	)
	if err != nil {
		_ = pc.Close()
		return controller.Description{}, fmt.Errorf("new track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return controller.Description{}, fmt.Errorf("add track: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &stream{pc: pc, track: track, cancel: cancel}
	st.forceKey.Store(true)

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.logger.Debug("ice connection state", "state", state.String())
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(offer.Type),
		SDP:  offer.SDP,
	}); err != nil {
		st.close()
		return controller.Description{}, fmt.Errorf("set remote description: %w", err)
	}
	ans, err := pc.CreateAnswer(nil)
	if err != nil {
		st.close()
		return controller.Description{}, fmt.Errorf("create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(ans); err != nil {
		st.close()
		return controller.Description{}, fmt.Errorf("set local description: %w", err)
	}
	<-gathered

	s.mu.Lock()
	s.streams[st] = struct{}{}
	s.mu.Unlock()

	go s.readRTCP(ctx, st, sender)
	go s.pump(ctx, st)

	local := pc.LocalDescription()
	return controller.Description{SDP: local.SDP, Type: local.Type.String()}, nil
}

func (s *Server) newPeerConnection() (*webrtc.PeerConnection, error) {
	if s.api != nil {
		return s.api.NewPeerConnection(webrtc.Configuration{})
	}
	return webrtc.NewPeerConnection(webrtc.Configuration{})
}

func (s *Server) stopStreams() {
	s.mu.Lock()
	streams := make([]*stream, 0, len(s.streams))
	for st := range s.streams {
		streams = append(streams, st)
	}
	s.streams = make(map[*stream]struct{})
	s.mu.Unlock()

	for _, st := range streams {
		st.close()
	}
}

func (st *stream) close() {
	st.cancel()
	_ = st.pc.Close()
}

// pump writes one synthetic access unit per frame interval.
func (s *Server) pump(ctx context.Context, st *stream) {
	packetizer := rtp.NewPacketizer(rtpMTU, h264Payload, 0, &codecs.H264Payloader{}, rtp.NewRandomSequencer(), h264Clock)
	samples := uint32(s.frameInterval.Seconds() * h264Clock)

	ticker := time.NewTicker(s.frameInterval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		key := n%keyframeEvery == 0 || st.forceKey.Swap(false)
		for _, pkt := range packetizer.Packetize(SyntheticAccessUnit(n, key), samples) {
			if err := st.track.WriteRTP(pkt); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Debug("write rtp", "error", err)
				}
				return
			}
		}
	}
}

// readRTCP reacts to the pilot's feedback: PLI forces a keyframe, REMB picks
// an encoder bitrate step.
func (s *Server) readRTCP(ctx context.Context, st *stream, sender *webrtc.RTPSender) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		for _, pkt := range pkts {
			switch p := pkt.(type) {
			case *rtcp.PictureLossIndication:
				st.forceKey.Store(true)
				s.mu.Lock()
				s.state.KeyframeRequests++
				s.mu.Unlock()
				s.logger.Debug("picture loss indication", "ssrc", p.MediaSSRC)
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				step := bitrateStep(float64(p.Bitrate))
				s.mu.Lock()
				s.state.BitrateMbps = step
				s.mu.Unlock()
				s.logger.Debug("receiver estimated bitrate", "estimate_bps", p.Bitrate, "step_mbps", step)
			}
		}
	}
}

// bitrateStep maps an estimate in bits/s to the encoder's supported rates in Mbit/s.
func bitrateStep(bps float64) float64 {
	mbps := bps / 1000 / 1000
	switch {
	case mbps >= 4:
		return 4
	case mbps >= 3:
		return 3
	case mbps >= 2:
		return 2
	case mbps >= 1.5:
		return 1.5
	default:
		return 1
	}
}

// SyntheticAccessUnit builds an Annex-B access unit. Keyframes carry SPS,
// PPS and an IDR slice; other frames a single non-IDR slice. Slice bodies are
// filler, so the stream exercises transport and framing, not decoding.
func SyntheticAccessUnit(n int, keyframe bool) []byte {
	start := []byte{0, 0, 0, 1}
	var au []byte
	if keyframe {
		au = append(au, start...)
		au = append(au, 0x67, 0x42, 0xc0, 0x1f, 0xda, 0x01, 0x40, 0x16, 0xe8)
		au = append(au, start...)
		au = append(au, 0x68, 0xce, 0x3c, 0x80)
		au = append(au, start...)
		au = append(au, 0x65)
	} else {
		au = append(au, start...)
		au = append(au, 0x41)
	}
	for i := 0; i < fillerLength; i++ {
		b := byte(n + i)
		if b == 0 {
			b = 0xff
		}
		au = append(au, b)
	}
	return au
}
