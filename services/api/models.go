package api

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type userModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	FirstName    string    `gorm:"type:text;not null"`
	LastName     string    `gorm:"type:text;not null"`
	Email        string    `gorm:"type:text;uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:text;not null"`
	Role         string    `gorm:"type:text;not null;default:'user'"`
	Reputation   int       `gorm:"type:integer;not null;default:0"`
	CreatedAt    time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt    time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (userModel) TableName() string { return "users" }

func (u userModel) toAPI() User {
	return User{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		Role:       u.Role,
		Reputation: u.Reputation,
		CreatedAt:  u.CreatedAt,
	}
}

type skillModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Title     string    `gorm:"type:text;not null"`
	Category  string    `gorm:"type:text"`
	Price     int64     `gorm:"type:bigint;not null;default:0"`
	IsPaid    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (skillModel) TableName() string { return "skills" }

func (s skillModel) toAPI() Skill {
	return Skill{
		ID:       s.ID,
		OwnerID:  s.OwnerID,
		Title:    s.Title,
		Category: s.Category,
		Price:    s.Price,
		IsPaid:   s.IsPaid,
	}
}

type exchangeModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequesterID   uuid.UUID `gorm:"type:uuid;not null;index:idx_exchanges_requester"`
	ProviderID    uuid.UUID `gorm:"type:uuid;not null;index:idx_exchanges_provider"`
	SkillID       uuid.UUID `gorm:"type:uuid;not null"`
	Status        string    `gorm:"type:text;not null;default:'requested'"`
	ExchangeType  string    `gorm:"type:text;not null"`
	Cost          int64     `gorm:"type:bigint;not null;default:0"`
	ReviewRating  *int      `gorm:"type:integer"`
	ReviewComment string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt     time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (exchangeModel) TableName() string { return "exchanges" }

func (e exchangeModel) toAPI() Exchange {
	out := Exchange{
		ID:           e.ID,
		RequesterID:  e.RequesterID,
		ProviderID:   e.ProviderID,
		SkillID:      e.SkillID,
		Status:       ExchangeStatus(e.Status),
		ExchangeType: ExchangeType(e.ExchangeType),
		Cost:         e.Cost,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if e.ReviewRating != nil {
		out.Review = &Review{Rating: *e.ReviewRating, Comment: e.ReviewComment}
	}
	return out
}

type workspaceModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExchangeID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Status     string    `gorm:"type:text;not null;default:'active'"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (workspaceModel) TableName() string { return "workspaces" }

func (w workspaceModel) toAPI(members ...uuid.UUID) Workspace {
	return Workspace{
		ID:         w.ID,
		ExchangeID: w.ExchangeID,
		Status:     WorkspaceStatus(w.Status),
		Members:    members,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}

type artifactModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index"`
	UploaderID  uuid.UUID `gorm:"type:uuid;not null"`
	Name        string    `gorm:"type:text;not null"`
	ContentType string    `gorm:"type:text;not null"`
	StorageKey  string    `gorm:"type:text;not null"`
	SHA256      string    `gorm:"type:text;not null"`
	Size        int64     `gorm:"type:bigint;not null"`
	Version     int       `gorm:"type:integer;not null"`
	Comment     string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (artifactModel) TableName() string { return "artifacts" }

func (a artifactModel) toAPI() Artifact {
	return Artifact{
		ID:          a.ID,
		WorkspaceID: a.WorkspaceID,
		UploaderID:  a.UploaderID,
		Name:        a.Name,
		ContentType: a.ContentType,
		StorageKey:  a.StorageKey,
		SHA256:      a.SHA256,
		Size:        a.Size,
		Version:     a.Version,
		Comment:     a.Comment,
		CreatedAt:   a.CreatedAt,
	}
}

type activityModel struct {
	ID          int64             `gorm:"type:bigserial;primaryKey"`
	WorkspaceID uuid.UUID         `gorm:"type:uuid;not null;index"`
	ActorID     uuid.UUID         `gorm:"type:uuid;not null"`
	Action      string            `gorm:"type:text;not null"`
	Detail      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (activityModel) TableName() string { return "activity_entries" }

func (a activityModel) toAPI() ActivityEntry {
	return ActivityEntry{
		ID:          a.ID,
		WorkspaceID: a.WorkspaceID,
		ActorID:     a.ActorID,
		Action:      a.Action,
		Detail:      mapFromJSONMap(a.Detail),
		CreatedAt:   a.CreatedAt,
	}
}

type messageModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        int64     `gorm:"->"`
	ExchangeID uuid.UUID `gorm:"type:uuid;not null;index"`
	SenderID   uuid.UUID `gorm:"type:uuid;not null"`
	Body       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (messageModel) TableName() string { return "messages" }

func (m messageModel) toAPI() Message {
	return Message{
		ID:         m.ID,
		Seq:        m.Seq,
		ExchangeID: m.ExchangeID,
		SenderID:   m.SenderID,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

func mapFromJSONMap(src datatypes.JSONMap) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func toJSONMap(src map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	if src == nil {
		return out
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
