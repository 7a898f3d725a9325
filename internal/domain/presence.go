package domain

import (
	"fmt"
	"time"
)

// TypingStaleness is the maximum age of a typing marker still treated as
// current by readers. Expiry is computed on read; there is no stop-typing push.
const TypingStaleness = 3500 * time.Millisecond

// PresenceTier is the coarse availability bucket derived from a record.
type PresenceTier string

const (
	TierActiveNow      PresenceTier = "active_now"
	TierRecentlyActive PresenceTier = "recently_active"
	TierOffline        PresenceTier = "offline"
)

// recentWindow is how long after the last heartbeat a user still counts
// as recently active. Exactly at the boundary is offline.
const recentWindow = 10 * time.Minute

// PresenceRecord is the liveness/typing document for one user identity.
type PresenceRecord struct {
	Identity   string    `json:"identity"`
	Active     bool      `json:"active"`
	LastActive time.Time `json:"lastActive"`
	TypingIn   string    `json:"typingIn"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PresenceStatus is the human-readable availability of a user.
type PresenceStatus struct {
	Tier  PresenceTier `json:"tier"`
	Label string       `json:"label"`
}

// Status derives the 3-tier availability of a record at the given instant.
// The active flag dominates staleness; lastActive is only consulted when
// the user is not currently foregrounded.
func Status(rec PresenceRecord, now time.Time) PresenceStatus {
	if rec.Active {
		return PresenceStatus{Tier: TierActiveNow, Label: "Active now"}
	}
	if rec.LastActive.IsZero() {
		return PresenceStatus{Tier: TierOffline, Label: "Offline"}
	}
	if now.Sub(rec.LastActive) < recentWindow {
		return PresenceStatus{Tier: TierRecentlyActive, Label: "Recently active"}
	}
	return PresenceStatus{Tier: TierOffline, Label: "Offline"}
}

// FriendStatus is the friend-aware variant: instead of collapsing stale
// records to "Offline" it buckets elapsed time into human phrases,
// because friends merit granularity strangers don't.
func FriendStatus(rec PresenceRecord, now time.Time) PresenceStatus {
	if rec.Active {
		return PresenceStatus{Tier: TierActiveNow, Label: "Online now"}
	}
	if rec.LastActive.IsZero() {
		return PresenceStatus{Tier: TierOffline, Label: "Offline"}
	}

	elapsed := now.Sub(rec.LastActive)
	min := int(elapsed.Minutes())
	switch {
	case min < 1:
		return PresenceStatus{Tier: TierRecentlyActive, Label: "a few seconds ago"}
	case min < 60:
		return PresenceStatus{Tier: TierRecentlyActive, Label: fmt.Sprintf("%d min ago", min)}
	case min < 24*60:
		return PresenceStatus{Tier: TierOffline, Label: fmt.Sprintf("%dh ago", min/60)}
	default:
		return PresenceStatus{Tier: TierOffline, Label: fmt.Sprintf("%dd ago", min/(24*60))}
	}
}

// TypingFresh reports whether a record's typing marker still counts for the
// given conversation at the given instant.
func TypingFresh(rec PresenceRecord, conversationID string, now time.Time) bool {
	if rec.TypingIn != conversationID || conversationID == "" {
		return false
	}
	if rec.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(rec.UpdatedAt) < TypingStaleness
}
