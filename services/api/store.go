package api

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"skillswap/pkg/bus"
	gos3 "skillswap/pkg/s3"
)

// Store holds external dependencies required by the API layer. DB serves
// read queries, ORM transactional writes; S3 holds artifact bytes; Bus
// carries lifecycle events. S3 and Bus may be nil in reduced deployments.
type Store struct {
	DB  *pgxpool.Pool
	ORM *gorm.DB
	S3  *gos3.Client
	Bus *bus.Bus
}
