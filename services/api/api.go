package api

import (
	"time"

	"github.com/google/uuid"
)

// ExchangeStatus enumerates the lifecycle states of an exchange.
type ExchangeStatus string

const (
	StatusRequested ExchangeStatus = "requested"
	StatusAccepted  ExchangeStatus = "accepted"
	StatusRejected  ExchangeStatus = "rejected"
	StatusCompleted ExchangeStatus = "completed"
	StatusCancelled ExchangeStatus = "cancelled"
)

// ExchangeType distinguishes free barter swaps from paid engagements.
type ExchangeType string

const (
	TypeBarter ExchangeType = "barter"
	TypePaid   ExchangeType = "paid"
)

// WorkspaceStatus marks whether a workspace still accepts uploads.
type WorkspaceStatus string

const (
	WorkspaceActive   WorkspaceStatus = "active"
	WorkspaceArchived WorkspaceStatus = "archived"
)

// User is the minimal profile surface the exchange core consumes.
type User struct {
	ID         uuid.UUID `json:"id" db:"id"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	Email      string    `json:"email" db:"email"`
	Role       string    `json:"role" db:"role"`
	Reputation int       `json:"reputation" db:"reputation"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Skill is the listing being exchanged. Listing CRUD lives elsewhere; the
// core only reads owner, price, and whether the skill is paid.
type Skill struct {
	ID       uuid.UUID `json:"id" db:"id"`
	OwnerID  uuid.UUID `json:"owner_id" db:"owner_id"`
	Title    string    `json:"title" db:"title"`
	Category string    `json:"category" db:"category"`
	Price    int64     `json:"price" db:"price"`
	IsPaid   bool      `json:"is_paid" db:"is_paid"`
}

// Review is an optional rating left by the requester when completing.
type Review struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// Exchange is an agreement between a requester and a provider to trade a
// skill, tracked through a status lifecycle.
type Exchange struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	RequesterID  uuid.UUID      `json:"requester_id" db:"requester_id"`
	ProviderID   uuid.UUID      `json:"provider_id" db:"provider_id"`
	SkillID      uuid.UUID      `json:"skill_id" db:"skill_id"`
	Status       ExchangeStatus `json:"status" db:"status"`
	ExchangeType ExchangeType   `json:"exchange_type" db:"exchange_type"`
	Cost         int64          `json:"cost" db:"cost"`
	Review       *Review        `json:"review,omitempty" db:"-"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// Participant reports whether id is one of the exchange's two parties.
func (e Exchange) Participant(id uuid.UUID) bool {
	return id == e.RequesterID || id == e.ProviderID
}

// Workspace is the collaborative space bound 1:1 to an accepted exchange.
// Membership is derived from the exchange pair, never stored separately.
type Workspace struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ExchangeID uuid.UUID       `json:"exchange_id" db:"exchange_id"`
	Status     WorkspaceStatus `json:"status" db:"status"`
	Members    []uuid.UUID     `json:"members" db:"-"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Artifact is a versioned uploaded file within a workspace. Versions are
// scoped to (workspace, name) and start at 1.
type Artifact struct {
	ID          uuid.UUID `json:"id" db:"id"`
	WorkspaceID uuid.UUID `json:"workspace_id" db:"workspace_id"`
	UploaderID  uuid.UUID `json:"uploader_id" db:"uploader_id"`
	Name        string    `json:"name" db:"name"`
	ContentType string    `json:"content_type" db:"content_type"`
	StorageKey  string    `json:"storage_key" db:"storage_key"`
	SHA256      string    `json:"sha256" db:"sha256"`
	Size        int64     `json:"size" db:"size"`
	Version     int       `json:"version" db:"version"`
	Comment     string    `json:"comment,omitempty" db:"comment"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ActivityEntry is one append-only row in a workspace's activity ledger.
type ActivityEntry struct {
	ID          int64          `json:"id" db:"id"`
	WorkspaceID uuid.UUID      `json:"workspace_id" db:"workspace_id"`
	ActorID     uuid.UUID      `json:"actor_id" db:"actor_id"`
	Action      string         `json:"action" db:"action"`
	Detail      map[string]any `json:"detail" db:"-"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// Activity action tags recorded in the ledger.
const (
	ActionCreateWorkspace = "CREATE_WORKSPACE"
	ActionUploadFile      = "UPLOAD_FILE"
	ActionStatusUpdate    = "STATUS_UPDATE"
)

// Message is one chat line in an exchange's room. Append only; the
// persistence order is the room's total order.
type Message struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Seq        int64     `json:"seq" db:"seq"`
	ExchangeID uuid.UUID `json:"exchange_id" db:"exchange_id"`
	SenderID   uuid.UUID `json:"sender_id" db:"sender_id"`
	Body       string    `json:"body" db:"body"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
