package domain

import (
	"sort"
	"strings"
	"time"
)

// CallStatus is the lifecycle state of a call session
type CallStatus string

const (
	StatusRinging   CallStatus = "ringing"
	StatusConnected CallStatus = "connected"
	StatusEnded     CallStatus = "ended"
	StatusRejected  CallStatus = "rejected"
	// StatusMissed is reserved for a UI-layer ring-timeout policy.
	// Nothing in the core writes it.
	StatusMissed CallStatus = "missed"
)

// transitions is the set of legal status changes. Terminal states
// (ended, rejected, missed) have no outgoing edges and never reopen.
var transitions = map[CallStatus][]CallStatus{
	StatusRinging:   {StatusConnected, StatusRejected, StatusEnded, StatusMissed},
	StatusConnected: {StatusEnded},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to CallStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing transitions.
func (s CallStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Role identifies which side of a call session a participant is on.
// It selects the candidate subcollection that side writes into.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// Opposite returns the other side's role.
func (r Role) Opposite() Role {
	if r == RoleCaller {
		return RoleCallee
	}
	return RoleCaller
}

// SessionDescription is one side's media-transport description,
// exchanged once per call as offer (caller) and answer (callee).
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is one transport-address proposal. Multiple per side,
// generated asynchronously, no ordering guarantee.
type ICECandidate struct {
	Candidate        string `json:"candidate"`
	SDPMid           string `json:"sdpMid,omitempty"`
	SDPMLineIndex    int    `json:"sdpMLineIndex"`
	UsernameFragment string `json:"usernameFragment,omitempty"`
}

// HistoryEntry is one append-only call log record (start, answer, mute, hangup).
type HistoryEntry struct {
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

// CallSession is one negotiation attempt between two participants.
// Field names are the wire contract shared with existing deployments.
type CallSession struct {
	ID        string              `json:"id"`
	Caller    string              `json:"caller"`
	Callee    string              `json:"callee"`
	PairKey   string              `json:"pairKey"`
	Status    CallStatus          `json:"status"`
	Offer     *SessionDescription `json:"offer"`
	Answer    *SessionDescription `json:"answer"`
	History   []HistoryEntry      `json:"history"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// PairKey builds the order-independent identifier of two participants.
// It correlates a ringing call to a specific open conversation view.
func PairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "__")
}
