package export

import (
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Manifest is the signed metadata included in a workspace bundle.
type Manifest struct {
	Version          string             `yaml:"version"`
	CreatedAt        time.Time          `yaml:"created_at"`
	WorkspaceID      uuid.UUID          `yaml:"workspace_id"`
	ExchangeID       uuid.UUID          `yaml:"exchange_id"`
	WorkspaceStatus  string             `yaml:"workspace_status"`
	Signer           string             `yaml:"signer,omitempty"`
	SigningPublicKey string             `yaml:"signing_public_key,omitempty"`
	Signature        string             `yaml:"signature,omitempty"`
	Artifacts        []ManifestArtifact `yaml:"artifacts"`
	Activity         []ManifestActivity `yaml:"activity,omitempty"`
}

// SigningBytes marshals the manifest without its signature for
// signing and verification.
func (m Manifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}

// ManifestArtifact describes one versioned file within the bundle.
type ManifestArtifact struct {
	Path        string    `yaml:"path"`
	Name        string    `yaml:"name"`
	Version     int       `yaml:"version"`
	ContentType string    `yaml:"content_type"`
	Size        int64     `yaml:"size"`
	SHA256      string    `yaml:"sha256"`
	UploaderID  uuid.UUID `yaml:"uploader_id"`
	UploadedAt  time.Time `yaml:"uploaded_at"`
}

// ManifestActivity is one row of the workspace activity snapshot.
type ManifestActivity struct {
	Action  string    `yaml:"action"`
	ActorID uuid.UUID `yaml:"actor_id"`
	At      time.Time `yaml:"at"`
}
