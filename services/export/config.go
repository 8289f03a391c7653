package export

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	gos3 "skillswap/pkg/s3"
)

// BuildConfig configures a workspace export.
type BuildConfig struct {
	WorkspaceID uuid.UUID
	Bucket      string
	Output      string
	DB          *pgxpool.Pool
	S3          *gos3.Client
	Signer      *Signer
	Now         func() time.Time
	Stdout      io.Writer
}

// VerifyConfig configures bundle verification.
type VerifyConfig struct {
	BundlePath string
	Signer     *Signer
	Stdout     io.Writer
}
