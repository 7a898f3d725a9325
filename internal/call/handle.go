// Package call drives the lifecycle of one audio/video call: media
// acquisition, peer negotiation over the signaling channel, and teardown.
package call

import (
	"sync"

	"pulsechat-core/internal/domain"
	"pulsechat-core/internal/rtc"
)

// Handle is the live state of one call leg. It is returned by StartCall
// and AnswerCall and consumed by EndCall and the toggles. All mutation
// goes through the controller; consumers read the streams and session.
type Handle struct {
	session *domain.CallSession
	role    domain.Role
	self    string
	peer    rtc.PeerConnection
	local   *rtc.Stream
	remote  *rtc.Stream

	mu       sync.Mutex
	active   bool
	answered bool
	cleanups []func()
}

func newHandle(session *domain.CallSession, role domain.Role, self string, peer rtc.PeerConnection, local, remote *rtc.Stream) *Handle {
	return &Handle{
		session: session,
		role:    role,
		self:    self,
		peer:    peer,
		local:   local,
		remote:  remote,
		active:  true,
	}
}

// SessionID returns the signaling document id of this call.
func (h *Handle) SessionID() string { return h.session.ID }

// Session returns the session snapshot taken when the handle was built.
func (h *Handle) Session() *domain.CallSession { return h.session }

// Role reports which side of the call this handle holds.
func (h *Handle) Role() domain.Role { return h.role }

// LocalStream holds the captured tracks being sent.
func (h *Handle) LocalStream() *rtc.Stream { return h.local }

// RemoteStream accumulates tracks as the far side's media arrives.
func (h *Handle) RemoteStream() *rtc.Stream { return h.remote }

// Peer exposes the underlying peer connection. Consumers register
// OnConnectionStateChange on it to surface stalled or dropped calls;
// signaling never reports transport health.
func (h *Handle) Peer() rtc.PeerConnection { return h.peer }

// Active reports whether the call has not been torn down yet.
func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// addCleanup registers an unsubscribe to run on teardown. If teardown
// already happened the function runs immediately, so a watch installed in
// the same instant a remote hangup lands still gets released.
func (h *Handle) addCleanup(fn func()) {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		fn()
		return
	}
	h.cleanups = append(h.cleanups, fn)
	h.mu.Unlock()
}

// markAnswered flips the answered flag and reports whether this call was
// the first. The remote description must be applied exactly once.
func (h *Handle) markAnswered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.answered {
		return false
	}
	h.answered = true
	return true
}

// deactivate claims teardown. The first caller gets the cleanup list and
// true; every later caller gets false, making teardown idempotent.
func (h *Handle) deactivate() ([]func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return nil, false
	}
	h.active = false
	cleanups := h.cleanups
	h.cleanups = nil
	return cleanups, true
}
