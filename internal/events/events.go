// Package events defines the notifications emitted on successful ledger
// mutations and the publisher port they travel through. Events are emitted
// after state commits; a publish failure is an observability gap, never a
// reason to unwind ledger state.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tranchebook/pkg/domain"
)

// Type names a notification.
type Type string

const (
	TypeTransferred        Type = "transferred"
	TypeIssued             Type = "issued"
	TypeRedeemed           Type = "redeemed"
	TypeOperatorAuthorized Type = "operator_authorized"
	TypeOperatorRevoked    Type = "operator_revoked"
	TypeDocumentUpdated    Type = "document_updated"
)

// Event carries the full parameter set of the triggering operation plus the
// resolved tranches.
type Event struct {
	ID   uuid.UUID `json:"id"`
	Type Type      `json:"type"`
	At   time.Time `json:"at"`

	// Operator is the caller when acting on another account's balance;
	// equal to From/Holder for self-initiated operations.
	Operator domain.Address `json:"operator,omitempty"`
	From     domain.Address `json:"from,omitempty"`
	To       domain.Address `json:"to,omitempty"`
	// Holder is the affected account for authorization and redemption
	// events.
	Holder domain.Address `json:"holder,omitempty"`

	FromTranche string `json:"from_tranche,omitempty"`
	ToTranche   string `json:"to_tranche,omitempty"`
	// Tranche is the scope of a tranche-level authorization event.
	Tranche string `json:"tranche,omitempty"`
	Amount  uint64 `json:"amount,omitempty"`

	Data         []byte `json:"data,omitempty"`
	OperatorData []byte `json:"operator_data,omitempty"`

	// Document fields, set on DocumentUpdated only.
	DocumentName string `json:"document_name,omitempty"`
	DocumentURI  string `json:"document_uri,omitempty"`
	DocumentHash string `json:"document_hash,omitempty"`
}

// New stamps a fresh event of the given type.
func New(t Type) Event {
	return Event{ID: uuid.New(), Type: t, At: time.Now().UTC()}
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
func (Discard) Close() error                         { return nil }
