// Package rtc is the peer-connection and media-capture capability consumed
// by the call controller. The interfaces mirror the browser primitive the
// web clients negotiate against; the pion adapter is the native
// implementation, and tests substitute fakes.
package rtc

import (
	"context"
	"sync"

	"pulsechat-core/internal/domain"
)

// TrackKind distinguishes audio from video tracks.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is one local or remote media track. Enabled is the mute/camera
// flag: disabling transmits silence or frozen frames without renegotiating.
type Track interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(bool)
	// Stop releases the underlying device. Required on teardown; it is
	// the only way to give the camera/microphone back to the OS.
	Stop()
}

// Stream is an ordered bag of tracks.
type Stream struct {
	mu     sync.Mutex
	tracks []Track
}

// NewStream builds a stream over the given tracks.
func NewStream(tracks ...Track) *Stream {
	return &Stream{tracks: tracks}
}

// Add appends a track. Used by the remote-track accumulator.
func (s *Stream) Add(t Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

// Tracks returns a snapshot of all tracks.
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// AudioTracks returns a snapshot of the audio tracks.
func (s *Stream) AudioTracks() []Track { return s.kind(TrackAudio) }

// VideoTracks returns a snapshot of the video tracks.
func (s *Stream) VideoTracks() []Track { return s.kind(TrackVideo) }

func (s *Stream) kind(k TrackKind) []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

// ConnectionState is the coarse peer-connection state exposed for UI
// stall detection.
type ConnectionState string

const (
	StateNew          ConnectionState = "new"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
	StateClosed       ConnectionState = "closed"
)

// PeerConnection is the negotiation engine for one call. Candidates
// arriving before the remote description is committed are queued by the
// engine itself; callers never drop or reorder them.
type PeerConnection interface {
	AddTrack(Track) error
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetLocalDescription(domain.SessionDescription) error
	SetRemoteDescription(domain.SessionDescription) error
	// HasRemoteDescription guards against double-applying the answer,
	// which is a protocol violation rather than a wasted write.
	HasRemoteDescription() bool
	AddICECandidate(domain.ICECandidate) error
	// OnICECandidate fires per discovered candidate; a nil candidate
	// signals end of gathering. Zero candidates is not an error.
	OnICECandidate(func(*domain.ICECandidate))
	OnTrack(func(Track))
	OnConnectionStateChange(func(ConnectionState))
	Close() error
}

// Config selects NAT-traversal helpers for a new peer connection.
type Config struct {
	ICEServers []string
	// RecvOnly adds receive-only transceivers so the SDP carries valid
	// m-lines even when no local media was captured.
	RecvOnly bool
}

// Engine creates peer connections and acquires local media.
type Engine interface {
	// GetUserMedia acquires local tracks: audio always requested, video
	// only when wanted. Permission or device failures are terminal for
	// the call attempt.
	GetUserMedia(ctx context.Context, audio, video bool) (*Stream, error)
	NewPeerConnection(cfg Config) (PeerConnection, error)
}
