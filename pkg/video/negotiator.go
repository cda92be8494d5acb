// Package video negotiates the controller's video feed over WebRTC and hands
// the inbound H.264 track to display sinks.
//
// Negotiation gathers every ICE candidate before posting the offer, so the
// controller receives a complete description in a single round trip.
package video

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/controller"
)

// DefaultKeyframeInterval is how often a picture loss indication is sent.
const DefaultKeyframeInterval = 10 * time.Second

// Offerer exchanges a local description for the controller's answer.
type Offerer interface {
	Offer(ctx context.Context, desc controller.Description) (controller.Description, error)
}

// Status is a snapshot of the negotiation session.
type Status struct {
	Active     bool       `json:"active"`
	SessionID  string     `json:"session_id,omitempty"`
	Connection string     `json:"connection,omitempty"`
	Answered   bool       `json:"answered"`
	Track      *TrackInfo `json:"track,omitempty"`
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithICEServers sets the STUN/TURN URLs handed to the peer connection.
func WithICEServers(urls ...string) Option {
	return func(n *Negotiator) {
		n.iceServers = append([]string(nil), urls...)
	}
}

// WithKeyframeInterval sets the PLI period. Zero disables periodic requests.
func WithKeyframeInterval(d time.Duration) Option {
	return func(n *Negotiator) {
		n.keyframeInterval = d
	}
}

// WithAPI builds peer connections from api instead of the package default.
func WithAPI(api *webrtc.API) Option {
	return func(n *Negotiator) {
		n.api = api
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Negotiator) {
		n.logger = l
	}
}

// Negotiator owns at most one peer session at a time.
type Negotiator struct {
	offerer          Offerer
	sink             Sink
	iceServers       []string
	keyframeInterval time.Duration
	api              *webrtc.API
	logger           *slog.Logger

	mu   sync.Mutex
	sess *peerSession

	lmu     sync.Mutex
	onTrack []func(TrackInfo)
}

type peerSession struct {
	id       string
	pc       *webrtc.PeerConnection
	ctx      context.Context
	cancel   context.CancelFunc
	answered bool
	track    *TrackInfo
	attached atomic.Bool
}

// New creates a Negotiator posting offers through offerer and feeding sink.
// A nil sink discards the track.
func New(offerer Offerer, sink Sink, opts ...Option) *Negotiator {
	if sink == nil {
		sink = MultiSink(nil)
	}
	n := &Negotiator{
		offerer:          offerer,
		sink:             sink,
		keyframeInterval: DefaultKeyframeInterval,
		logger:           log.Component("video"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// OnTrack registers fn to run after a video track is attached to the sink.
func (n *Negotiator) OnTrack(fn func(TrackInfo)) *Negotiator {
	n.lmu.Lock()
	n.onTrack = append(n.onTrack, fn)
	n.lmu.Unlock()
	return n
}

// Start creates a session and runs the offer/answer exchange. A failed
// negotiation leaves the session in place until Teardown. Start registers
// nothing once ctx is done, so cancelling ctx before Teardown leaves no
// session behind.
func (n *Negotiator) Start(ctx context.Context) error {
	pc, err := n.newPeerConnection()
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &peerSession{id: uuid.NewString(), pc: pc, ctx: sctx, cancel: cancel}

	n.mu.Lock()
	if ctx.Err() != nil {
		n.mu.Unlock()
		cancel()
		_ = pc.Close()
		return ErrSessionClosed
	}
	if n.sess != nil {
		n.mu.Unlock()
		cancel()
		_ = pc.Close()
		return ErrSessionActive
	}
	n.sess = s
	n.mu.Unlock()

	logger := n.logger.With("session", s.id)
	n.watch(s, logger)

	// Teardown aborts whatever step is in flight.
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	unlink := context.AfterFunc(sctx, stop)
	defer unlink()

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return fmt.Errorf("add transceiver: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			logger.Debug("ignoring track", "kind", track.Kind().String())
			return
		}
		n.attach(s, track, logger)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return n.interrupted(s, ctx.Err())
	}
	if !n.current(s) {
		return ErrSessionClosed
	}

	local := pc.LocalDescription()
	logger.Debug("ice gathering complete", "sdp_bytes", len(local.SDP))

	answer, err := n.offerer.Offer(ctx, controller.Description{SDP: local.SDP, Type: local.Type.String()})
	if !n.current(s) {
		return ErrSessionClosed
	}
	if err != nil {
		return fmt.Errorf("offer: %w", err)
	}
	if answer.SDP == "" {
		return ErrEmptyAnswer
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(answer.Type),
		SDP:  answer.SDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	n.mu.Lock()
	s.answered = true
	n.mu.Unlock()
	logger.Info("negotiation complete")
	return nil
}

// Teardown stops every transceiver and sender and closes the session.
// It is a no-op when no session exists and safe to call repeatedly.
func (n *Negotiator) Teardown() {
	n.mu.Lock()
	s := n.sess
	n.sess = nil
	n.mu.Unlock()
	if s == nil {
		return
	}

	s.cancel()
	logger := n.logger.With("session", s.id)

	for _, tr := range s.pc.GetTransceivers() {
		if err := tr.Stop(); err != nil {
			logger.Debug("stop transceiver", "error", err)
		}
	}
	for _, sender := range s.pc.GetSenders() {
		if err := sender.Stop(); err != nil {
			logger.Debug("stop sender", "error", err)
		}
	}
	if err := s.pc.Close(); err != nil {
		logger.Debug("close peer connection", "error", err)
	}
	if s.attached.Swap(false) {
		n.sink.Detach()
	}
	logger.Info("session closed")
}

// Status reports the current session.
func (n *Negotiator) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.sess
	if s == nil {
		return Status{}
	}
	st := Status{
		Active:     true,
		SessionID:  s.id,
		Connection: s.pc.ConnectionState().String(),
		Answered:   s.answered,
	}
	if s.track != nil {
		t := *s.track
		st.Track = &t
	}
	return st
}

// RequestKeyframe sends one picture loss indication for the attached track.
func (n *Negotiator) RequestKeyframe() error {
	n.mu.Lock()
	s := n.sess
	var ssrc uint32
	if s != nil && s.track != nil {
		ssrc = s.track.SSRC
	}
	n.mu.Unlock()
	if s == nil || ssrc == 0 {
		return ErrNoSession
	}
	return writePLI(s.pc, ssrc)
}

func (n *Negotiator) newPeerConnection() (*webrtc.PeerConnection, error) {
	cfg := webrtc.Configuration{}
	if len(n.iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: n.iceServers}}
	}
	if n.api != nil {
		return n.api.NewPeerConnection(cfg)
	}
	return webrtc.NewPeerConnection(cfg)
}

func (n *Negotiator) current(s *peerSession) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sess == s
}

func (n *Negotiator) interrupted(s *peerSession, err error) error {
	if !n.current(s) {
		return ErrSessionClosed
	}
	return fmt.Errorf("ice gathering: %w", err)
}

func (n *Negotiator) watch(s *peerSession, logger *slog.Logger) {
	s.pc.OnICEGatheringStateChange(func(state webrtc.ICEGathererState) {
		logger.Debug("ice gathering state", "state", state.String())
	})
	s.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Debug("ice connection state", "state", state.String())
	})
	s.pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		logger.Debug("signaling state", "state", state.String())
	})
	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("connection state", "state", state.String())
	})
}

func (n *Negotiator) attach(s *peerSession, track *webrtc.TrackRemote, logger *slog.Logger) {
	info := TrackInfo{
		SessionID: s.id,
		TrackID:   track.ID(),
		StreamID:  track.StreamID(),
		MimeType:  track.Codec().MimeType,
		SSRC:      uint32(track.SSRC()),
	}

	n.mu.Lock()
	if n.sess != s {
		n.mu.Unlock()
		return
	}
	s.track = &info
	n.sink.Attach(info)
	s.attached.Store(true)
	n.mu.Unlock()
	logger.Info("video track attached", "mime", info.MimeType, "ssrc", info.SSRC)

	n.lmu.Lock()
	listeners := slices.Clone(n.onTrack)
	n.lmu.Unlock()
	for _, fn := range listeners {
		fn(info)
	}

	go n.read(s, track, logger)
	if n.keyframeInterval > 0 {
		go n.requestKeyframes(s, info.SSRC, logger)
	}
}

func (n *Negotiator) read(s *peerSession, track *webrtc.TrackRemote, logger *slog.Logger) {
	var lastErrLog time.Time
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Debug("track read ended", "error", err)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		if err := n.sink.WriteRTP(pkt); err != nil && time.Since(lastErrLog) > 5*time.Second {
			logger.Warn("sink write failed", "error", err)
			lastErrLog = time.Now()
		}
	}
}

func (n *Negotiator) requestKeyframes(s *peerSession, ssrc uint32, logger *slog.Logger) {
	ticker := time.NewTicker(n.keyframeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := writePLI(s.pc, ssrc); err != nil {
				logger.Debug("keyframe request failed", "error", err)
			}
		}
	}
}

func writePLI(pc *webrtc.PeerConnection, ssrc uint32) error {
	return pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
}
