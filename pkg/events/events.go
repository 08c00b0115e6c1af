// Package events keeps an append-only history per verification so the
// review queue can show how a case got to its current state.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event is one entry of a verification's history. Payloads stay small and
// JSON friendly.
type Event interface {
	Type() string
	VerificationID() string
	Timestamp() time.Time
	Actor() *string
}

// Base carries the metadata every event shares.
type Base struct {
	Ts  time.Time `json:"ts"`
	VID string    `json:"verification_id"`
	Act *string   `json:"actor,omitempty"`
}

func (b Base) Timestamp() time.Time   { return b.Ts }
func (b Base) VerificationID() string { return b.VID }
func (b Base) Actor() *string         { return b.Act }

// NewBase stamps an event for id at the current time.
func NewBase(id string, actor *string) Base {
	return Base{Ts: time.Now().UTC(), VID: id, Act: actor}
}

const (
	TypeReceived = "verification.received"
	TypeAssessed = "verification.assessed"
	TypeReviewed = "verification.reviewed"
)

// VerificationReceived is emitted when an address enters the pipeline.
type VerificationReceived struct {
	Base
	Source      string `json:"source"`
	FullAddress string `json:"full_address"`
	Document    string `json:"document_type,omitempty"`
}

func (VerificationReceived) Type() string { return TypeReceived }

// VerificationAssessed captures the engine's verdict.
type VerificationAssessed struct {
	Base
	Confidence     int      `json:"confidence"`
	State          string   `json:"state"`
	AlertKinds     []string `json:"alert_kinds,omitempty"`
	Similarity     int      `json:"similarity"`
	GeocodeSuccess bool     `json:"geocode_success"`
	CPExists       bool     `json:"cp_exists"`
}

func (VerificationAssessed) Type() string { return TypeAssessed }

// VerificationReviewed is a reviewer's ruling from the manual review queue.
type VerificationReviewed struct {
	Base
	Decision  string `json:"decision"`
	Notes     string `json:"notes,omitempty"`
	Overrides bool   `json:"overrides"`
}

func (VerificationReviewed) Type() string { return TypeReviewed }

// EventStore persists and replays events. Implementations keep insertion
// order per verification.
type EventStore interface {
	Append(ctx context.Context, ev ...Event) error
	ListByVerification(ctx context.Context, id string) ([]StoredEvent, error)
}

// StoredEvent is the durable form. Seq increases monotonically per store.
type StoredEvent struct {
	Seq            int64           `json:"seq"`
	VerificationID string          `json:"verification_id"`
	Type           string          `json:"type"`
	At             time.Time       `json:"at"`
	Actor          *string         `json:"actor,omitempty"`
	Data           json.RawMessage `json:"data"`
}

// State is what a replay reconstructs.
type State struct {
	VerificationID string     `json:"verification_id"`
	Source         string     `json:"source,omitempty"`
	State          string     `json:"state"`
	Confidence     int        `json:"confidence"`
	AlertKinds     []string   `json:"alert_kinds,omitempty"`
	Reviewed       bool       `json:"reviewed"`
	ReviewedBy     string     `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	Overridden     bool       `json:"overridden"`
	LastUpdated    time.Time  `json:"last_updated"`
	Events         int        `json:"events"`
}

// Replay folds events in order. Unknown types only bump the counters.
func Replay(events []StoredEvent) *State {
	st := &State{}
	for _, se := range events {
		st.VerificationID = se.VerificationID
		st.LastUpdated = se.At
		st.Events++
		switch se.Type {
		case TypeReceived:
			var ev VerificationReceived
			if json.Unmarshal(se.Data, &ev) == nil {
				st.Source = ev.Source
			}
		case TypeAssessed:
			var ev VerificationAssessed
			if json.Unmarshal(se.Data, &ev) == nil {
				st.State = ev.State
				st.Confidence = ev.Confidence
				st.AlertKinds = ev.AlertKinds
			}
		case TypeReviewed:
			var ev VerificationReviewed
			if json.Unmarshal(se.Data, &ev) == nil {
				at := se.At
				st.State = ev.Decision
				st.Reviewed = true
				st.ReviewedAt = &at
				st.Overridden = ev.Overrides
				if se.Actor != nil {
					st.ReviewedBy = *se.Actor
				}
			}
		}
	}
	return st
}

// ReplayVerification lists and folds the history of one verification.
func ReplayVerification(ctx context.Context, s EventStore, id string) (*State, error) {
	evs, err := s.ListByVerification(ctx, id)
	if err != nil {
		return nil, err
	}
	return Replay(evs), nil
}
