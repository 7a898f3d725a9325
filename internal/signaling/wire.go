package signaling

import (
	"time"

	"pulsechat-core/internal/docstore"
	"pulsechat-core/internal/domain"
)

// Field names below are the wire contract shared with the deployed web
// clients and must not be renamed.

func sessionFields(session *domain.CallSession) map[string]any {
	return map[string]any{
		"caller":    session.Caller,
		"callee":    session.Callee,
		"pairKey":   session.PairKey,
		"status":    string(session.Status),
		"offer":     descriptionFields(session.Offer),
		"answer":    descriptionFields(session.Answer),
		"history":   []any{},
		"createdAt": docstore.ServerTimestamp,
		"updatedAt": docstore.ServerTimestamp,
	}
}

func descriptionFields(desc *domain.SessionDescription) any {
	if desc == nil {
		return nil
	}
	return map[string]any{
		"type": desc.Type,
		"sdp":  desc.SDP,
	}
}

func candidateFields(cand domain.ICECandidate) map[string]any {
	return map[string]any{
		"candidate":        cand.Candidate,
		"sdpMid":           cand.SDPMid,
		"sdpMLineIndex":    cand.SDPMLineIndex,
		"usernameFragment": cand.UsernameFragment,
		"createdAt":        docstore.ServerTimestamp,
	}
}

// DecodeSession rebuilds a CallSession from its wire document.
func DecodeSession(doc docstore.Document) domain.CallSession {
	fields := doc.Fields
	session := domain.CallSession{
		ID:        doc.ID,
		Caller:    asString(fields["caller"]),
		Callee:    asString(fields["callee"]),
		PairKey:   asString(fields["pairKey"]),
		Status:    domain.CallStatus(asString(fields["status"])),
		Offer:     decodeDescription(fields["offer"]),
		Answer:    decodeDescription(fields["answer"]),
		CreatedAt: asTime(fields["createdAt"]),
		UpdatedAt: asTime(fields["updatedAt"]),
	}
	if entries, ok := fields["history"].([]any); ok {
		for _, e := range entries {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			session.History = append(session.History, domain.HistoryEntry{
				Actor:  asString(m["actor"]),
				Action: asString(m["action"]),
				At:     asTime(m["at"]),
			})
		}
	}
	return session
}

func decodeDescription(v any) *domain.SessionDescription {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return nil
	}
	return &domain.SessionDescription{
		Type: asString(m["type"]),
		SDP:  asString(m["sdp"]),
	}
}

func decodeCandidate(doc docstore.Document) domain.ICECandidate {
	fields := doc.Fields
	return domain.ICECandidate{
		Candidate:        asString(fields["candidate"]),
		SDPMid:           asString(fields["sdpMid"]),
		SDPMLineIndex:    asInt(fields["sdpMLineIndex"]),
		UsernameFragment: asString(fields["usernameFragment"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64: // JSON round-trips numbers as float64
		return int(n)
	}
	return 0
}

// nowWire is the writer-clock stamp used inside array elements, where
// server-time transforms are not allowed.
func nowWire() time.Time { return time.Now().UTC() }

// asTime accepts native time values and the RFC3339 strings that JSON
// round-trips produce on the Redis backend.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
