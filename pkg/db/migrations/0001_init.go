package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type User struct {
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

type Skill struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Title     string    `gorm:"type:text;not null"`
	Category  string    `gorm:"type:text"`
	Price     int64     `gorm:"type:bigint;not null;default:0"`
	IsPaid    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Owner     User      `gorm:"foreignKey:OwnerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Exchange struct {
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
	Requester     User      `gorm:"foreignKey:RequesterID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Provider      User      `gorm:"foreignKey:ProviderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Skill         Skill     `gorm:"foreignKey:SkillID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Workspace struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExchangeID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Status     string    `gorm:"type:text;not null;default:'active'"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	Exchange   Exchange  `gorm:"foreignKey:ExchangeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type WorkArtifact struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_artifacts_ws_name_version,priority:1"`
	UploaderID  uuid.UUID `gorm:"type:uuid;not null"`
	Name        string    `gorm:"type:text;not null;uniqueIndex:idx_artifacts_ws_name_version,priority:2"`
	ContentType string    `gorm:"type:text;not null"`
	StorageKey  string    `gorm:"type:text;not null"`
	SHA256      string    `gorm:"type:text;not null"`
	Size        int64     `gorm:"type:bigint;not null"`
	Version     int       `gorm:"type:integer;not null;uniqueIndex:idx_artifacts_ws_name_version,priority:3"`
	Comment     string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Workspace   Workspace `gorm:"foreignKey:WorkspaceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Uploader    User      `gorm:"foreignKey:UploaderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (WorkArtifact) TableName() string { return "artifacts" }

type ActivityEntry struct {
	ID          int64             `gorm:"type:bigserial;primaryKey"`
	WorkspaceID uuid.UUID         `gorm:"type:uuid;not null;index"`
	ActorID     uuid.UUID         `gorm:"type:uuid;not null"`
	Action      string            `gorm:"type:text;not null"`
	Detail      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Workspace   Workspace         `gorm:"foreignKey:WorkspaceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ActivityEntry) TableName() string { return "activity_entries" }

type Message struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        int64     `gorm:"type:bigserial;uniqueIndex;not null"`
	ExchangeID uuid.UUID `gorm:"type:uuid;not null;index"`
	SenderID   uuid.UUID `gorm:"type:uuid;not null"`
	Body       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Exchange   Exchange  `gorm:"foreignKey:ExchangeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Sender     User      `gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&User{},
		&Skill{},
		&Exchange{},
		&Workspace{},
		&WorkArtifact{},
		&ActivityEntry{},
		&Message{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if err := m.CreateConstraint(&Exchange{}, "Requester"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Exchange{}, "Provider"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Exchange{}, "Skill"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Workspace{}, "Exchange"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&WorkArtifact{}, "Workspace"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&ActivityEntry{}, "Workspace"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Message{}, "Exchange"); err != nil {
		return err
	}

	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&Message{},
		&ActivityEntry{},
		&WorkArtifact{},
		&Workspace{},
		&Exchange{},
		&Skill{},
		&User{},
	)
}
