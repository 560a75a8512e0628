// Package domain defines the persistence models for ingested mail, the
// mailbox cursor and created tickets. These types are mapped with GORM and
// form the core data layer of the intake service.
package domain

import (
	"time"
)

// MessageStatus is the processing state of an ingested message.
type MessageStatus string

const (
	StatusUnprocessed         MessageStatus = "unprocessed"
	StatusProcessed           MessageStatus = "processed"
	StatusDuplicate           MessageStatus = "duplicate"
	StatusIgnored             MessageStatus = "ignored"
	StatusErrorClassification MessageStatus = "error_classification"
	StatusErrorNoRequester    MessageStatus = "error_no_requester"
	StatusErrorTicketSystem   MessageStatus = "error_ticket_system"
	StatusErrorReconciliation MessageStatus = "error_reconciliation"
)

// AllStatuses lists every status in a stable order.
var AllStatuses = []MessageStatus{
	StatusUnprocessed,
	StatusProcessed,
	StatusDuplicate,
	StatusIgnored,
	StatusErrorClassification,
	StatusErrorNoRequester,
	StatusErrorTicketSystem,
	StatusErrorReconciliation,
}

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether a message in this status is no longer picked up
// by the pipeline.
func (s MessageStatus) Terminal() bool {
	return s != StatusUnprocessed && s.Valid()
}

// Resettable reports whether an operator may move the message back to
// unprocessed. Reconciliation gaps are excluded because a ticket already
// exists upstream.
func (s MessageStatus) Resettable() bool {
	switch s {
	case StatusErrorClassification, StatusErrorNoRequester, StatusErrorTicketSystem:
		return true
	}
	return false
}

// IntentKind is the classifier's verdict on a message.
type IntentKind string

const (
	KindIncident       IntentKind = "incident"
	KindServiceRequest IntentKind = "service_request"
	KindIgnore         IntentKind = "ignore"
)

// Valid reports whether k is one of the known kinds.
func (k IntentKind) Valid() bool {
	switch k {
	case KindIncident, KindServiceRequest, KindIgnore:
		return true
	}
	return false
}

// Priority is the classifier's urgency estimate.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Intent is the structured classification of a message. It is stored as a
// JSON column on Message.
type Intent struct {
	Kind             IntentKind `json:"intent_type"`
	Category         string     `json:"category,omitempty"`
	Subcategory      string     `json:"subcategory,omitempty"`
	ShortDescription string     `json:"short_description,omitempty"`
	Priority         Priority   `json:"priority,omitempty"`
}

// Message is an email ingested from the monitored mailbox.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - MessageID: the RFC 5322 Message-ID; unique, guarantees idempotent ingestion.
//   - Position: mailbox cursor position (IMAP UID) the message was fetched at.
//   - Status: processing state; only "unprocessed" rows are picked up.
//   - Intent: classification result, set once classified.
//   - TicketRef: external ticket number when a ticket was created.
//   - Fingerprint: dedup key, set once classified as actionable.
//   - Attempts: number of operator resets; feeds the ticket correlation token.
type Message struct {
	ID          string        `json:"id"                     gorm:"type:char(36);primaryKey"`
	MessageID   string        `json:"message_id"             gorm:"type:varchar(512);not null;uniqueIndex:ux_messages_message_id"`
	Position    uint32        `json:"position"               gorm:"not null;default:0;index:idx_messages_status_pos,priority:2"`
	Sender      string        `json:"sender"                 gorm:"type:varchar(320);not null"`
	Subject     string        `json:"subject"                gorm:"type:text;not null"`
	Body        string        `json:"body"                   gorm:"type:text;not null"`
	ReceivedAt  time.Time     `json:"received_at"`
	Status      MessageStatus `json:"status"                 gorm:"type:varchar(32);not null;default:'unprocessed';index:idx_messages_status_pos,priority:1"`
	Intent      *Intent       `json:"intent,omitempty"       gorm:"type:text;serializer:json"`
	TicketRef   *string       `json:"ticket_ref,omitempty"   gorm:"type:varchar(64)"`
	Fingerprint *string       `json:"fingerprint,omitempty"  gorm:"type:char(64);index"`
	Attempts    int           `json:"attempts"               gorm:"not null;default:0"`
	LastError   string        `json:"last_error,omitempty"   gorm:"type:text"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Cursor is the persisted mailbox position. One row per mailbox.
type Cursor struct {
	Mailbox        string     `json:"mailbox"   gorm:"type:varchar(255);primaryKey"`
	Position       uint32     `json:"position"  gorm:"not null;default:0"`
	Bootstrapped   bool       `json:"bootstrapped" gorm:"not null;default:false"`
	BootstrappedAt *time.Time `json:"bootstrapped_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Cursor.
func (Cursor) TableName() string { return "cursors" }

// TicketStatus is the local view of a created ticket. Only "open" tickets
// participate in deduplication.
type TicketStatus string

const TicketOpen TicketStatus = "open"

// Ticket records a ticket created in the external ITSM system. Rows are the
// authoritative dedup ledger.
//
// MessageRowID points at Message.ID (the row key, not the RFC 5322 header).
// The distinct name keeps GORM from reading the association as
// Message-has-one-Ticket, which would put the constraint on messages.
type Ticket struct {
	ID           string       `json:"id"             gorm:"type:char(36);primaryKey"`
	MessageRowID string       `json:"message_row_id" gorm:"type:char(36);not null;index"`
	Fingerprint  string       `json:"fingerprint"    gorm:"type:char(64);not null;index:idx_tickets_fp_created,priority:1"`
	Kind         IntentKind   `json:"kind"           gorm:"type:varchar(32);not null"`
	TicketRef    string       `json:"ticket_ref"     gorm:"type:varchar(64);not null"`
	ExternalID   string       `json:"external_id"    gorm:"type:varchar(64)"`
	Status       TicketStatus `json:"status"         gorm:"type:varchar(16);not null;default:'open'"`
	CreatedAt    time.Time    `json:"created_at"     gorm:"index:idx_tickets_fp_created,priority:2"`

	Message Message `json:"-" gorm:"foreignKey:MessageRowID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Ticket.
func (Ticket) TableName() string { return "tickets" }
