package call

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"pulsechat-core/internal/domain"
	"pulsechat-core/internal/rtc"
	"pulsechat-core/internal/signaling"
	apperrors "pulsechat-core/pkg/errors"
	"pulsechat-core/pkg/metrics"
)

// Controller orchestrates call setup and teardown. It owns the ordering
// contract: media first, then the peer, then the signaling writes, so a
// media failure never leaves a half-created session ringing on the far side.
type Controller struct {
	channel *signaling.Channel
	engine  rtc.Engine
	log     *zap.Logger
}

// NewController creates a controller over the given signaling channel and
// rtc engine.
func NewController(channel *signaling.Channel, engine rtc.Engine, log *zap.Logger) *Controller {
	return &Controller{channel: channel, engine: engine, log: log}
}

// StartCall places a call from caller to callee. ctx scopes the whole call,
// not just the setup: candidate forwarding and the answer watch stop when
// it is canceled. A media failure aborts before anything is published.
func (c *Controller) StartCall(ctx context.Context, caller, callee string, wantsVideo bool) (*Handle, error) {
	local, peer, remote, err := c.prepareLeg(ctx, wantsVideo)
	if err != nil {
		return nil, err
	}

	// Candidates can surface as soon as the local description commits,
	// before the session document exists. Queue them until it does.
	fw := &candidateForwarder{}
	peer.OnICECandidate(func(cand *domain.ICECandidate) {
		if cand == nil {
			return
		}
		fw.forward(*cand)
	})

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		abortLocal(peer, local)
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := peer.SetLocalDescription(offer); err != nil {
		abortLocal(peer, local)
		return nil, fmt.Errorf("failed to commit offer: %w", err)
	}

	session, err := c.channel.PublishOffer(ctx, caller, callee, offer)
	if err != nil {
		abortLocal(peer, local)
		return nil, err
	}

	handle := newHandle(session, domain.RoleCaller, caller, peer, local, remote)
	metrics.CallsActive.Inc()
	fw.arm(func(cand domain.ICECandidate) {
		if err := c.channel.AppendLocalCandidate(ctx, session.ID, domain.RoleCaller, cand); err != nil {
			c.log.Debug("candidate publish failed", zap.String("session", session.ID), zap.Error(err))
		}
	})

	if err := c.watchLeg(ctx, handle); err != nil {
		c.EndCall(ctx, handle)
		return nil, err
	}

	metrics.CallsStartedTotal.WithLabelValues(mediaLabel(wantsVideo)).Inc()
	c.log.Info("call started",
		zap.String("session", session.ID),
		zap.String("caller", caller),
		zap.String("callee", callee),
		zap.Bool("video", wantsVideo))
	return handle, nil
}

// AnswerCall accepts a ringing call. A vanished session surfaces as
// call-not-found; a session already answered, rejected, or ended fails as
// no longer available without touching media.
func (c *Controller) AnswerCall(ctx context.Context, sessionID string, wantsVideo bool) (*Handle, error) {
	session, err := c.channel.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.StatusRinging || session.Offer == nil {
		return nil, apperrors.CallTerminal(sessionID)
	}

	local, peer, remote, err := c.prepareLeg(ctx, wantsVideo)
	if err != nil {
		return nil, err
	}

	// The callee knows the session id up front, so discovered candidates
	// publish straight into answerCandidates.
	peer.OnICECandidate(func(cand *domain.ICECandidate) {
		if cand == nil {
			return
		}
		if err := c.channel.AppendLocalCandidate(ctx, sessionID, domain.RoleCallee, *cand); err != nil {
			c.log.Debug("candidate publish failed", zap.String("session", sessionID), zap.Error(err))
		}
	})

	if err := peer.SetRemoteDescription(*session.Offer); err != nil {
		abortLocal(peer, local)
		return nil, fmt.Errorf("failed to apply offer: %w", err)
	}
	answer, err := peer.CreateAnswer(ctx)
	if err != nil {
		abortLocal(peer, local)
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := peer.SetLocalDescription(answer); err != nil {
		abortLocal(peer, local)
		return nil, fmt.Errorf("failed to commit answer: %w", err)
	}

	// The caller may have hung up while we were acquiring media; the
	// transition guard catches that here.
	if err := c.channel.PublishAnswer(ctx, sessionID, answer); err != nil {
		abortLocal(peer, local)
		return nil, err
	}

	handle := newHandle(session, domain.RoleCallee, session.Callee, peer, local, remote)
	metrics.CallsActive.Inc()
	handle.markAnswered()

	if err := c.watchLeg(ctx, handle); err != nil {
		c.EndCall(ctx, handle)
		return nil, err
	}

	if err := c.channel.AppendHistory(ctx, sessionID, session.Callee, "answer"); err != nil {
		c.log.Debug("history append failed", zap.String("session", sessionID), zap.Error(err))
	}

	c.log.Info("call answered",
		zap.String("session", sessionID),
		zap.String("callee", session.Callee),
		zap.Bool("video", wantsVideo))
	return handle, nil
}

// EndCall hangs up: stops local tracks, closes the peer, cancels the
// watches, and terminates the session. Safe while still ringing and safe
// to call repeatedly; only the first call does anything.
func (c *Controller) EndCall(ctx context.Context, h *Handle) error {
	cleanups, first := h.deactivate()
	if !first {
		return nil
	}
	runCleanups(cleanups)
	stopTracks(h.local)
	_ = h.peer.Close()
	metrics.CallsActive.Dec()

	err := c.channel.Terminate(ctx, h.SessionID(), h.self)
	if apperrors.HasCode(err, apperrors.ErrCodeCallTerminal) || apperrors.HasCode(err, apperrors.ErrCodeCallNotFound) {
		// The far side got there first; the call is over either way.
		return nil
	}
	return err
}

// ToggleMute flips every local audio track and returns the new enabled
// state. Local-only; no renegotiation, no signaling write beyond a
// best-effort history entry.
func (c *Controller) ToggleMute(ctx context.Context, h *Handle) bool {
	on, ok := h.toggle(rtc.TrackAudio)
	if !ok {
		return false
	}
	action := "mute"
	if on {
		action = "unmute"
	}
	if err := c.channel.AppendHistory(ctx, h.SessionID(), h.self, action); err != nil {
		c.log.Debug("history append failed", zap.String("session", h.SessionID()), zap.Error(err))
	}
	return on
}

// ToggleCamera flips every local video track and returns the new enabled
// state.
func (c *Controller) ToggleCamera(ctx context.Context, h *Handle) bool {
	on, ok := h.toggle(rtc.TrackVideo)
	if !ok {
		return false
	}
	action := "camera_off"
	if on {
		action = "camera_on"
	}
	if err := c.channel.AppendHistory(ctx, h.SessionID(), h.self, action); err != nil {
		c.log.Debug("history append failed", zap.String("session", h.SessionID()), zap.Error(err))
	}
	return on
}

// prepareLeg acquires media and builds the peer with the local tracks
// attached and the remote-track accumulator installed.
func (c *Controller) prepareLeg(ctx context.Context, wantsVideo bool) (*rtc.Stream, rtc.PeerConnection, *rtc.Stream, error) {
	local, err := c.engine.GetUserMedia(ctx, true, wantsVideo)
	if err != nil {
		metrics.CallMediaFailuresTotal.Inc()
		return nil, nil, nil, apperrors.MediaUnavailable(err)
	}

	peer, err := c.engine.NewPeerConnection(rtc.Config{RecvOnly: len(local.Tracks()) == 0})
	if err != nil {
		stopTracks(local)
		return nil, nil, nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	remote := rtc.NewStream()
	peer.OnTrack(remote.Add)

	for _, t := range local.Tracks() {
		if err := peer.AddTrack(t); err != nil {
			abortLocal(peer, local)
			return nil, nil, nil, err
		}
	}
	return local, peer, remote, nil
}

// watchLeg installs the remote-candidate feed and the session watch. The
// session watch applies the answer exactly once on the caller side and
// tears the leg down locally when the far side terminates it.
func (c *Controller) watchLeg(ctx context.Context, h *Handle) error {
	unsubCand, err := c.channel.WatchRemoteCandidates(ctx, h.SessionID(), h.role, func(cand domain.ICECandidate) {
		if err := h.peer.AddICECandidate(cand); err != nil {
			c.log.Debug("failed to apply remote candidate", zap.String("session", h.SessionID()), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch remote candidates: %w", err)
	}
	h.addCleanup(unsubCand)

	unsubSess, err := c.channel.WatchSession(ctx, h.SessionID(), func(s domain.CallSession) {
		if s.Answer != nil && h.markAnswered() {
			if err := h.peer.SetRemoteDescription(*s.Answer); err != nil {
				c.log.Error("failed to apply answer", zap.String("session", h.SessionID()), zap.Error(err))
			}
		}
		if s.Status.Terminal() {
			c.teardownLocal(h)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch session: %w", err)
	}
	h.addCleanup(unsubSess)
	return nil
}

// teardownLocal releases local resources when the far side already moved
// the session to a terminal status. No signaling write happens here.
func (c *Controller) teardownLocal(h *Handle) {
	cleanups, first := h.deactivate()
	if !first {
		return
	}
	runCleanups(cleanups)
	stopTracks(h.local)
	_ = h.peer.Close()
	metrics.CallsActive.Dec()
	c.log.Info("call ended by remote", zap.String("session", h.SessionID()))
}

// toggle flips all local tracks of one kind under the handle lock, so a
// toggle can never race teardown onto stopped tracks.
func (h *Handle) toggle(kind rtc.TrackKind) (bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return false, false
	}
	var tracks []rtc.Track
	for _, t := range h.local.Tracks() {
		if t.Kind() == kind {
			tracks = append(tracks, t)
		}
	}
	if len(tracks) == 0 {
		return false, false
	}
	next := !tracks[0].Enabled()
	for _, t := range tracks {
		t.SetEnabled(next)
	}
	return next, true
}

// candidateForwarder queues discovered candidates until the session
// document exists, then flushes and forwards directly.
type candidateForwarder struct {
	mu      sync.Mutex
	publish func(domain.ICECandidate)
	pending []domain.ICECandidate
}

func (f *candidateForwarder) forward(cand domain.ICECandidate) {
	f.mu.Lock()
	publish := f.publish
	if publish == nil {
		f.pending = append(f.pending, cand)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	publish(cand)
}

func (f *candidateForwarder) arm(publish func(domain.ICECandidate)) {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.publish = publish
	f.mu.Unlock()
	for _, cand := range pending {
		publish(cand)
	}
}

func abortLocal(peer rtc.PeerConnection, local *rtc.Stream) {
	stopTracks(local)
	_ = peer.Close()
}

func stopTracks(s *rtc.Stream) {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

func runCleanups(cleanups []func()) {
	for _, fn := range cleanups {
		fn()
	}
}

func mediaLabel(wantsVideo bool) string {
	if wantsVideo {
		return "video"
	}
	return "audio"
}
