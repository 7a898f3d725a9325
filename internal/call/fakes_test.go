package call

import (
	"context"
	"fmt"
	"sync"

	"pulsechat-core/internal/domain"
	"pulsechat-core/internal/rtc"
)

// fakeTrack is an in-memory stand-in for a capture track.
type fakeTrack struct {
	id   string
	kind rtc.TrackKind

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func newFakeTrack(id string, kind rtc.TrackKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string          { return t.id }
func (t *fakeTrack) Kind() rtc.TrackKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fakePeer records descriptions and candidates instead of negotiating.
type fakePeer struct {
	mu            sync.Mutex
	tracks        []rtc.Track
	localDesc     *domain.SessionDescription
	remoteDesc    *domain.SessionDescription
	remoteApplied int
	candidates    []domain.ICECandidate
	onICE         func(*domain.ICECandidate)
	onTrack       func(rtc.Track)
	onState       func(rtc.ConnectionState)
	closed        bool

	// emitOnCommit simulates gathering starting as soon as the local
	// description commits, before any signaling write has happened.
	emitOnCommit []domain.ICECandidate
}

func (p *fakePeer) AddTrack(t rtc.Track) error {
	p.mu.Lock()
	p.tracks = append(p.tracks, t)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: "offer", SDP: "v=0 offer"}, nil
}

func (p *fakePeer) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: "answer", SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetLocalDescription(desc domain.SessionDescription) error {
	p.mu.Lock()
	p.localDesc = &desc
	onICE := p.onICE
	pending := p.emitOnCommit
	p.emitOnCommit = nil
	p.mu.Unlock()

	if onICE != nil {
		for i := range pending {
			onICE(&pending[i])
		}
	}
	return nil
}

func (p *fakePeer) SetRemoteDescription(desc domain.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteDesc = &desc
	p.remoteApplied++
	return nil
}

func (p *fakePeer) HasRemoteDescription() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteDesc != nil
}

func (p *fakePeer) AddICECandidate(cand domain.ICECandidate) error {
	p.mu.Lock()
	p.candidates = append(p.candidates, cand)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(*domain.ICECandidate)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnTrack(fn func(rtc.Track)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnConnectionStateChange(fn func(rtc.ConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *fakePeer) emitState(s rtc.ConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) RemoteApplied() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteApplied
}

func (p *fakePeer) Candidates() []domain.ICECandidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ICECandidate, len(p.candidates))
	copy(out, p.candidates)
	return out
}

// emitCandidate pushes a discovered candidate through the registered hook.
func (p *fakePeer) emitCandidate(cand domain.ICECandidate) {
	p.mu.Lock()
	onICE := p.onICE
	p.mu.Unlock()
	if onICE != nil {
		onICE(&cand)
	}
}

// deliverRemoteTrack simulates far-side media arriving.
func (p *fakePeer) deliverRemoteTrack(t rtc.Track) {
	p.mu.Lock()
	onTrack := p.onTrack
	p.mu.Unlock()
	if onTrack != nil {
		onTrack(t)
	}
}

// fakeEngine hands out fake peers and tracks.
type fakeEngine struct {
	mu       sync.Mutex
	mediaErr error
	tracks   func(video bool) []rtc.Track
	peers    []*fakePeer

	nextEmitOnCommit []domain.ICECandidate
}

func newFakeEngine() *fakeEngine {
	n := 0
	return &fakeEngine{
		tracks: func(video bool) []rtc.Track {
			n++
			out := []rtc.Track{newFakeTrack(fmt.Sprintf("mic-%d", n), rtc.TrackAudio)}
			if video {
				out = append(out, newFakeTrack(fmt.Sprintf("cam-%d", n), rtc.TrackVideo))
			}
			return out
		},
	}
}

func (e *fakeEngine) GetUserMedia(ctx context.Context, audio, video bool) (*rtc.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mediaErr != nil {
		return nil, e.mediaErr
	}
	return rtc.NewStream(e.tracks(video)...), nil
}

func (e *fakeEngine) NewPeerConnection(cfg rtc.Config) (rtc.PeerConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	peer := &fakePeer{emitOnCommit: e.nextEmitOnCommit}
	e.nextEmitOnCommit = nil
	e.peers = append(e.peers, peer)
	return peer, nil
}

func (e *fakeEngine) lastPeer() *fakePeer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.peers) == 0 {
		return nil
	}
	return e.peers[len(e.peers)-1]
}

func (e *fakeEngine) peerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.peers)
}
