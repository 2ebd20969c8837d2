package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// Stores and topics may route or retain categories differently.
type EventCategory string

const (
	// CategoryTrust covers changes to which issuers the wallet trusts.
	CategoryTrust EventCategory = "trust"

	// CategorySecurity covers rejected handshakes and failed verifications.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine wallet activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	// Subject is the credential or issuer id the action applies to.
	Subject string
	Action  string
	Source  string
	Outcome string
	Reason  string
	// ActorID is the authenticated API subject.
	ActorID   string
	RequestID string
	ClientIP  string
	// Client is a short "browser on platform" description of the caller's User-Agent.
	Client string
}

type AuditEvent string

const (
	// Credential events
	EventCredentialImported AuditEvent = "credential_imported"
	EventCredentialRejected AuditEvent = "credential_rejected"
	EventCredentialVerified AuditEvent = "credential_verified"
	EventCredentialFailed   AuditEvent = "credential_verification_failed"
	EventCredentialDeleted  AuditEvent = "credential_deleted"

	// Issuer events
	EventIssuerAutoRegistered AuditEvent = "issuer_auto_registered"
	EventIssuerIntroduced     AuditEvent = "issuer_introduced"
	EventIssuerRejected       AuditEvent = "issuer_introduction_rejected"
	EventIssuerDeleted        AuditEvent = "issuer_deleted"
	EventIssuerUnresolved     AuditEvent = "issuer_unresolved"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventIssuerAutoRegistered: CategoryTrust,
	EventIssuerIntroduced:     CategoryTrust,
	EventIssuerDeleted:        CategoryTrust,

	EventIssuerRejected:     CategorySecurity,
	EventCredentialFailed:   CategorySecurity,
	EventIssuerUnresolved:   CategorySecurity,
	EventCredentialRejected: CategorySecurity,

	EventCredentialImported: CategoryOperations,
	EventCredentialVerified: CategoryOperations,
	EventCredentialDeleted:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
