package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusActiveFlagDominates(t *testing.T) {
	now := time.Now()

	// Even a very stale lastActive yields the top tier while active.
	rec := PresenceRecord{Active: true, LastActive: now.Add(-48 * time.Hour)}
	status := Status(rec, now)
	assert.Equal(t, TierActiveNow, status.Tier)
	assert.Equal(t, "Active now", status.Label)
}

func TestStatusStalenessBuckets(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		rec  PresenceRecord
		tier PresenceTier
	}{
		{"no heartbeat ever", PresenceRecord{}, TierOffline},
		{"5 minutes ago", PresenceRecord{LastActive: now.Add(-5 * time.Minute)}, TierRecentlyActive},
		{"exactly 10 minutes", PresenceRecord{LastActive: now.Add(-10 * time.Minute)}, TierOffline},
		{"15 minutes ago", PresenceRecord{LastActive: now.Add(-15 * time.Minute)}, TierOffline},
		{"just under 10 minutes", PresenceRecord{LastActive: now.Add(-10*time.Minute + time.Second)}, TierRecentlyActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.tier, Status(tt.rec, now).Tier)
		})
	}
}

func TestFriendStatusBuckets(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		rec   PresenceRecord
		label string
	}{
		{"online", PresenceRecord{Active: true}, "Online now"},
		{"seconds", PresenceRecord{LastActive: now.Add(-30 * time.Second)}, "a few seconds ago"},
		{"minutes", PresenceRecord{LastActive: now.Add(-42 * time.Minute)}, "42 min ago"},
		{"hours", PresenceRecord{LastActive: now.Add(-3 * time.Hour)}, "3h ago"},
		{"days", PresenceRecord{LastActive: now.Add(-50 * time.Hour)}, "2d ago"},
		{"never seen", PresenceRecord{}, "Offline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.label, FriendStatus(tt.rec, now).Label)
		})
	}
}

func TestTypingFresh(t *testing.T) {
	now := time.Now()

	fresh := PresenceRecord{TypingIn: "conv-1", UpdatedAt: now.Add(-time.Second)}
	assert.True(t, TypingFresh(fresh, "conv-1", now))

	// Stale beyond the window is never surfaced regardless of typingIn.
	stale := PresenceRecord{TypingIn: "conv-1", UpdatedAt: now.Add(-3500 * time.Millisecond)}
	assert.False(t, TypingFresh(stale, "conv-1", now))

	otherConv := PresenceRecord{TypingIn: "conv-2", UpdatedAt: now}
	assert.False(t, TypingFresh(otherConv, "conv-1", now))

	notTyping := PresenceRecord{TypingIn: "", UpdatedAt: now}
	assert.False(t, TypingFresh(notTyping, "", now))
}
