package rtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"pulsechat-core/internal/domain"
)

// PionEngine implements Engine on pion/webrtc. Media capture is
// platform-specific: Linux captures camera/mic via pion/mediadevices,
// other platforms negotiate receive-only.
type PionEngine struct {
	iceServers []string
	log        *zap.Logger
	capturer   mediaCapturer
}

// mediaCapturer is the per-platform capture hook. populate registers the
// capture codecs on a media engine and reports whether it did so.
type mediaCapturer interface {
	getUserMedia(ctx context.Context, audio, video bool) (*Stream, error)
	populate(me *webrtc.MediaEngine) bool
}

// NewPionEngine creates an engine using the given STUN/TURN servers.
func NewPionEngine(iceServers []string, log *zap.Logger) *PionEngine {
	return &PionEngine{
		iceServers: iceServers,
		log:        log,
		capturer:   newCapturer(log),
	}
}

// GetUserMedia acquires local media tracks.
func (e *PionEngine) GetUserMedia(ctx context.Context, audio, video bool) (*Stream, error) {
	return e.capturer.getUserMedia(ctx, audio, video)
}

// NewPeerConnection builds a configured pion peer connection.
func (e *PionEngine) NewPeerConnection(cfg Config) (PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if !e.capturer.populate(mediaEngine) {
		if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("failed to register codecs: %w", err)
		}
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	// Generous ICE timeouts so a brief NAT/relay hiccup does not tear the
	// call down before ICE can recover.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)

	servers := cfg.ICEServers
	if len(servers) == 0 {
		servers = e.iceServers
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: servers}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	if cfg.RecvOnly {
		if err := addRecvOnlyTransceivers(pc); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	return &pionPeer{pc: pc, log: e.log}, nil
}

// addRecvOnlyTransceivers gives the SDP valid m-lines with ICE credentials
// when no local media is attached.
func addRecvOnlyTransceivers(pc *webrtc.PeerConnection) error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return fmt.Errorf("failed to add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

// localTrackSource is implemented by capture tracks that wrap a pion
// TrackLocal; pionPeer unwraps through it on AddTrack.
type localTrackSource interface {
	webrtcTrack() webrtc.TrackLocal
}

// pionPeer adapts *webrtc.PeerConnection to the PeerConnection interface.
type pionPeer struct {
	pc  *webrtc.PeerConnection
	log *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func (p *pionPeer) AddTrack(t Track) error {
	src, ok := t.(localTrackSource)
	if !ok {
		return fmt.Errorf("track %s is not a local capture track", t.ID())
	}
	if _, err := p.pc.AddTrack(src.webrtcTrack()); err != nil {
		return fmt.Errorf("failed to add track %s: %w", t.ID(), err)
	}
	return nil
}

func (p *pionPeer) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	desc, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	return domain.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}, nil
}

func (p *pionPeer) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	desc, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	return domain.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}, nil
}

func (p *pionPeer) SetLocalDescription(desc domain.SessionDescription) error {
	return p.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (p *pionPeer) SetRemoteDescription(desc domain.SessionDescription) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (p *pionPeer) HasRemoteDescription() bool {
	return p.pc.CurrentRemoteDescription() != nil
}

func (p *pionPeer) AddICECandidate(cand domain.ICECandidate) error {
	init := webrtc.ICECandidateInit{Candidate: cand.Candidate}
	if cand.SDPMid != "" {
		mid := cand.SDPMid
		init.SDPMid = &mid
	}
	index := uint16(cand.SDPMLineIndex)
	init.SDPMLineIndex = &index
	if cand.UsernameFragment != "" {
		frag := cand.UsernameFragment
		init.UsernameFragment = &frag
	}
	return p.pc.AddICECandidate(init)
}

func (p *pionPeer) OnICECandidate(fn func(*domain.ICECandidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		j := c.ToJSON()
		cand := domain.ICECandidate{Candidate: j.Candidate}
		if j.SDPMid != nil {
			cand.SDPMid = *j.SDPMid
		}
		if j.SDPMLineIndex != nil {
			cand.SDPMLineIndex = int(*j.SDPMLineIndex)
		}
		if j.UsernameFragment != nil {
			cand.UsernameFragment = *j.UsernameFragment
		}
		fn(&cand)
	})
}

func (p *pionPeer) OnTrack(fn func(Track)) {
	p.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(&remoteTrack{remote: remote, enabled: true})
	})
}

func (p *pionPeer) OnConnectionStateChange(fn func(ConnectionState)) {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		fn(ConnectionState(state.String()))
	})
}

func (p *pionPeer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}

// remoteTrack wraps an inbound pion track. Stop is a no-op: remote tracks
// end when the sender stops them or the connection closes.
type remoteTrack struct {
	remote *webrtc.TrackRemote

	mu      sync.Mutex
	enabled bool
}

func (t *remoteTrack) ID() string { return t.remote.ID() }

func (t *remoteTrack) Kind() TrackKind {
	if t.remote.Kind() == webrtc.RTPCodecTypeVideo {
		return TrackVideo
	}
	return TrackAudio
}

func (t *remoteTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *remoteTrack) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

func (t *remoteTrack) Stop() {}
