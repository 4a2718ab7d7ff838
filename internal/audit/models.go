package audit

import "time"

// Action names an audited operation.
type Action string

const (
	ActionSignatureCreated  Action = "signature_created"
	ActionSignatureRejected Action = "signature_rejected"
	ActionSignatureDeleted  Action = "signature_deleted"
	ActionAdminLogin        Action = "admin_login"
	ActionAdminLoginFailed  Action = "admin_login_failed"
	ActionIngestTriggered   Action = "ingest_triggered"
	ActionNationRefreshed   Action = "nation_refreshed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out. Actor is "public" for visitors and
// the admin subject otherwise.
type Event struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	Nation      string    `json:"nation,omitempty"`
	SignatureID int64     `json:"signature_id,omitempty"`
	Actor       string    `json:"actor"`
	Client      string    `json:"client,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ActorPublic marks events caused by anonymous visitors.
const ActorPublic = "public"
