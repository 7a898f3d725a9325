package signaling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pulsechat-core/internal/docstore/memory"
	"pulsechat-core/internal/domain"
	apperrors "pulsechat-core/pkg/errors"
)

func newTestChannel() *Channel {
	return NewChannel(memory.New(), zap.NewNop())
}

var testOffer = domain.SessionDescription{Type: "offer", SDP: "v=0 caller"}
var testAnswer = domain.SessionDescription{Type: "answer", SDP: "v=0 callee"}

func TestPublishOfferCreatesRingingSession(t *testing.T) {
	ch := newTestChannel()
	ctx := context.Background()

	session, err := ch.PublishOffer(ctx, "alice@x.com", "bob@x.com", testOffer)
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)

	stored, err := ch.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRinging, stored.Status)
	assert.Equal(t, "alice@x.com", stored.Caller)
	assert.Equal(t, "bob@x.com", stored.Callee)
	assert.Equal(t, "alice@x.com__bob@x.com", stored.PairKey)
	require.NotNil(t, stored.Offer)
	assert.Equal(t, testOffer.SDP, stored.Offer.SDP)
	assert.Nil(t, stored.Answer)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestPublishAnswerConnects(t *testing.T) {
	ch := newTestChannel()
	ctx := context.Background()

	session, err := ch.PublishOffer(ctx, "alice@x.com", "bob@x.com", testOffer)
	require.NoError(t, err)

	require.NoError(t, ch.PublishAnswer(ctx, session.ID, testAnswer))

	stored, err := ch.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConnected, stored.Status)
	require.NotNil(t, stored.Answer)
	assert.Equal(t, testAnswer.SDP, stored.Answer.SDP)
}

func TestPublishAnswerFailsOnTerminalSession(t *testing.T) {
	ch := newTestChannel()
	ctx := context.Background()

	session, err := ch.PublishOffer(ctx, "alice@x.com", "bob@x.com", testOffer)
	require.NoError(t, err)
	require.NoError(t, ch.Reject(ctx, session.ID, "bob@x.com"))

	err = ch.PublishAnswer(ctx, session.ID, testAnswer)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallTerminal))

	stored, err := ch.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, stored.Status)
	assert.Nil(t, stored.Answer)
}

func TestGetMissingSessionIsCallNotFound(t *testing.T) {
	ch := newTestChannel()

	_, err := ch.Get(context.Background(), "gone")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallNotFound))
}

func TestTerminateWhileRinging(t *testing.T) {
	ch := newTestChannel()
	ctx := context.Background()

	session, err := ch.PublishOffer(ctx, "alice@x.com", "bob@x.com", testOffer)
	require.NoError(t, err)

	// Caller hangs up before any answer: ended without ever being connected.
	require.NoError(t, ch.Terminate(ctx, session.ID, "alice@x.com"))

	stored, err := ch.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, stored.Status)
	require.NotEmpty(t, stored.History)
	assert.Equal(t, "hangup", stored.History[len(stored.History)-1].Action)
}

func TestTerminalStatusCannotBeResurrected(t *testing.T) {
	ch := newTestChannel()
	ctx := context.Background()

	session, err := ch.PublishOffer(ctx, "alice@x.com", "bob@x.com", testOffer)
	require.NoError(t, err)
	require.NoError(t, ch.Terminate(ctx, session.ID, "alice@x.com"))

	// A delayed reject against an ended session must not overwrite it.
	err = ch.Reject(ctx, session.ID, "bob@x.com")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallTerminal))

	stored, err := ch.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, stored.Status)
}

func TestTerminateIsIdempotent(t *testing.T) {
	ch := newTestChannel()
	ctx := context.Background()

	session, err := ch.PublishOffer(ctx, "alice@x.com", "bob@x.com", testOffer)
	require.NoError(t, err)
	require.NoError(t, ch.Terminate(ctx, session.ID, "alice@x.com"))
	require.NoError(t, ch.Terminate(ctx, session.ID, "alice@x.com"))
}

func TestCandidateFeedIsRoleOppositeAndAddedOnly(t *testing.T) {
	ch := newTestChannel()
	ctx := context.Background()

	session, err := ch.PublishOffer(ctx, "alice@x.com", "bob@x.com", testOffer)
	require.NoError(t, err)

	// Caller watches the callee's feed.
	var callerSaw []string
	unsub, err := ch.WatchRemoteCandidates(ctx, session.ID, domain.RoleCaller, func(cand domain.ICECandidate) {
		callerSaw = append(callerSaw, cand.Candidate)
	})
	require.NoError(t, err)
	defer unsub()

	// Callee candidates reach the caller; the caller's own do not.
	require.NoError(t, ch.AppendLocalCandidate(ctx, session.ID, domain.RoleCallee, domain.ICECandidate{Candidate: "c-callee-1"}))
	require.NoError(t, ch.AppendLocalCandidate(ctx, session.ID, domain.RoleCaller, domain.ICECandidate{Candidate: "c-caller-1"}))
	require.NoError(t, ch.AppendLocalCandidate(ctx, session.ID, domain.RoleCallee, domain.ICECandidate{Candidate: "c-callee-2"}))

	assert.Equal(t, []string{"c-callee-1", "c-callee-2"}, callerSaw)
}

func TestCandidatesAppendedBeforeWatchAreReplayed(t *testing.T) {
	ch := newTestChannel()
	ctx := context.Background()

	session, err := ch.PublishOffer(ctx, "alice@x.com", "bob@x.com", testOffer)
	require.NoError(t, err)
	require.NoError(t, ch.AppendLocalCandidate(ctx, session.ID, domain.RoleCaller, domain.ICECandidate{Candidate: "early"}))

	var calleeSaw []string
	unsub, err := ch.WatchRemoteCandidates(ctx, session.ID, domain.RoleCallee, func(cand domain.ICECandidate) {
		calleeSaw = append(calleeSaw, cand.Candidate)
	})
	require.NoError(t, err)
	defer unsub()

	assert.Equal(t, []string{"early"}, calleeSaw)
}

func TestWatchSessionSeesAnswerAndStatus(t *testing.T) {
	ch := newTestChannel()
	ctx := context.Background()

	session, err := ch.PublishOffer(ctx, "alice@x.com", "bob@x.com", testOffer)
	require.NoError(t, err)

	var statuses []domain.CallStatus
	var answers int
	unsub, err := ch.WatchSession(ctx, session.ID, func(s domain.CallSession) {
		statuses = append(statuses, s.Status)
		if s.Answer != nil {
			answers++
		}
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, ch.PublishAnswer(ctx, session.ID, testAnswer))

	assert.Contains(t, statuses, domain.StatusRinging)
	assert.Contains(t, statuses, domain.StatusConnected)
	assert.GreaterOrEqual(t, answers, 1)
}

func TestAppendHistoryAccumulates(t *testing.T) {
	ch := newTestChannel()
	ctx := context.Background()

	session, err := ch.PublishOffer(ctx, "alice@x.com", "bob@x.com", testOffer)
	require.NoError(t, err)

	require.NoError(t, ch.AppendHistory(ctx, session.ID, "alice@x.com", "start"))
	require.NoError(t, ch.AppendHistory(ctx, session.ID, "alice@x.com", "mute"))

	stored, err := ch.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 2)
	assert.Equal(t, "start", stored.History[0].Action)
	assert.Equal(t, "mute", stored.History[1].Action)
}
