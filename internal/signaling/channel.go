// Package signaling persists and observes call-negotiation documents:
// session descriptions, status transitions, and ICE candidate feeds.
// It is the transport half of call setup; peer-connection plumbing lives
// in internal/call.
package signaling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pulsechat-core/internal/docstore"
	"pulsechat-core/internal/domain"
	apperrors "pulsechat-core/pkg/errors"
	"pulsechat-core/pkg/metrics"
)

// CallsCollection is the collection holding call session documents.
const CallsCollection = "calls"

// candidateCollections maps a role to the subcollection that side writes into.
var candidateCollections = map[domain.Role]string{
	domain.RoleCaller: "offerCandidates",
	domain.RoleCallee: "answerCandidates",
}

// Channel is the signaling channel over a shared document store.
type Channel struct {
	store docstore.Store
	log   *zap.Logger
}

// NewChannel creates a signaling channel on the given store.
func NewChannel(store docstore.Store, log *zap.Logger) *Channel {
	return &Channel{store: store, log: log}
}

func candidatesPath(sessionID string, role domain.Role) string {
	return CallsCollection + "/" + sessionID + "/" + candidateCollections[role]
}

// PublishOffer creates the session document with status ringing and the
// caller's offer, and returns the session handle.
func (c *Channel) PublishOffer(ctx context.Context, caller, callee string, offer domain.SessionDescription) (*domain.CallSession, error) {
	session := &domain.CallSession{
		ID:      uuid.NewString(),
		Caller:  caller,
		Callee:  callee,
		PairKey: domain.PairKey(caller, callee),
		Status:  domain.StatusRinging,
		Offer:   &offer,
	}

	if err := c.store.Set(ctx, CallsCollection, session.ID, sessionFields(session)); err != nil {
		metrics.CallSignalErrorsTotal.WithLabelValues("publish_offer").Inc()
		return nil, fmt.Errorf("failed to publish offer: %w", err)
	}

	c.log.Info("call offer published",
		zap.String("session", session.ID),
		zap.String("caller", caller),
		zap.String("callee", callee))
	return session, nil
}

// Get loads one session. Missing documents surface as a call-not-found
// condition, distinct from transport failures.
func (c *Channel) Get(ctx context.Context, sessionID string) (*domain.CallSession, error) {
	doc, err := c.store.Get(ctx, CallsCollection, sessionID)
	if err == docstore.ErrNotFound {
		return nil, apperrors.CallNotFound(sessionID)
	}
	if err != nil {
		metrics.CallSignalErrorsTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	session := DecodeSession(doc)
	return &session, nil
}

// PublishAnswer stores the callee's answer and flips status to connected.
// Publishing against a terminal session fails without writing.
func (c *Channel) PublishAnswer(ctx context.Context, sessionID string, answer domain.SessionDescription) error {
	session, err := c.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(session.Status, domain.StatusConnected) {
		return apperrors.CallTerminal(sessionID)
	}

	err = c.store.Set(ctx, CallsCollection, sessionID, map[string]any{
		"answer":    descriptionFields(&answer),
		"status":    string(domain.StatusConnected),
		"updatedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		metrics.CallSignalErrorsTotal.WithLabelValues("publish_answer").Inc()
		return fmt.Errorf("failed to publish answer: %w", err)
	}

	metrics.CallsAnsweredTotal.Inc()
	c.log.Info("call answered", zap.String("session", sessionID))
	return nil
}

// AppendLocalCandidate appends one ICE candidate to this role's
// subcollection. Entries are never mutated or deleted.
func (c *Channel) AppendLocalCandidate(ctx context.Context, sessionID string, role domain.Role, cand domain.ICECandidate) error {
	if _, err := c.store.Add(ctx, candidatesPath(sessionID, role), candidateFields(cand)); err != nil {
		metrics.CallSignalErrorsTotal.WithLabelValues("append_candidate").Inc()
		return fmt.Errorf("failed to append %s candidate: %w", role, err)
	}
	return nil
}

// WatchRemoteCandidates feeds every candidate the opposite role appends,
// exactly once each. Arrival order carries no meaning; consumers must
// apply candidates in whatever order they surface.
func (c *Channel) WatchRemoteCandidates(ctx context.Context, sessionID string, role domain.Role, onEach func(domain.ICECandidate)) (docstore.Unsubscribe, error) {
	remote := candidatesPath(sessionID, role.Opposite())
	return c.store.WatchCollection(ctx, remote, func(change docstore.Change) {
		if change.Kind != docstore.ChangeAdded {
			return
		}
		metrics.CallCandidatesAppliedTotal.WithLabelValues(string(role.Opposite())).Inc()
		onEach(decodeCandidate(change.Doc))
	})
}

// WatchSession feeds every change of the session document, starting with
// its current state. The caller side uses this to detect the answer.
func (c *Channel) WatchSession(ctx context.Context, sessionID string, onUpdate func(domain.CallSession)) (docstore.Unsubscribe, error) {
	return c.store.WatchDoc(ctx, CallsCollection, sessionID, func(doc docstore.Document) {
		onUpdate(DecodeSession(doc))
	})
}

// Terminate moves the session to ended and appends a hangup history entry.
// The document is retained for history; candidate subcollections are not
// pruned here; reaping is an external housekeeping concern.
func (c *Channel) Terminate(ctx context.Context, sessionID, actor string) error {
	if err := c.setStatus(ctx, sessionID, domain.StatusEnded); err != nil {
		return err
	}
	metrics.CallsEndedTotal.Inc()
	c.log.Info("call terminated", zap.String("session", sessionID), zap.String("actor", actor))
	return c.AppendHistory(ctx, sessionID, actor, "hangup")
}

// Reject moves a ringing session to rejected. Distinct from ended: a
// rejected call never transitioned through connected.
func (c *Channel) Reject(ctx context.Context, sessionID, actor string) error {
	if err := c.setStatus(ctx, sessionID, domain.StatusRejected); err != nil {
		return err
	}
	metrics.CallsRejectedTotal.Inc()
	c.log.Info("call rejected", zap.String("session", sessionID), zap.String("actor", actor))
	return c.AppendHistory(ctx, sessionID, actor, "reject")
}

// AppendHistory appends one {actor, action, at} entry to the session's
// append-only log. Array elements cannot carry server-time transforms, so
// the entry is stamped with the writer's clock; updatedAt still gets the
// server timestamp.
func (c *Channel) AppendHistory(ctx context.Context, sessionID, actor, action string) error {
	entry := map[string]any{
		"actor":  actor,
		"action": action,
		"at":     nowWire(),
	}
	err := c.store.Set(ctx, CallsCollection, sessionID, map[string]any{
		"history":   docstore.ArrayUnion(entry),
		"updatedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		metrics.CallSignalErrorsTotal.WithLabelValues("append_history").Inc()
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// setStatus applies the transition table before writing, so a delayed
// write can never resurrect a terminal session.
func (c *Channel) setStatus(ctx context.Context, sessionID string, to domain.CallStatus) error {
	session, err := c.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == to {
		return nil
	}
	if !domain.CanTransition(session.Status, to) {
		return apperrors.CallTerminal(sessionID)
	}

	err = c.store.Set(ctx, CallsCollection, sessionID, map[string]any{
		"status":    string(to),
		"updatedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		metrics.CallSignalErrorsTotal.WithLabelValues("set_status").Inc()
		return fmt.Errorf("failed to set status %s: %w", to, err)
	}
	return nil
}
