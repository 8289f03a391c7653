package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MIME types accepted for artifact uploads.
var allowedContentTypes = map[string]bool{
	"image/jpeg":                   true,
	"image/png":                    true,
	"image/gif":                    true,
	"application/pdf":              true,
	"text/plain":                   true,
	"application/zip":              true,
	"application/x-zip-compressed": true,
}

// WorkspaceView is the read model for a workspace page: the workspace,
// its participants, artifacts newest first, and the activity ledger
// newest first. Related users are joined at read time, not embedded.
type WorkspaceView struct {
	Workspace    Workspace       `json:"workspace"`
	Participants []User          `json:"participants"`
	Artifacts    []Artifact      `json:"artifacts"`
	Activity     []ActivityEntry `json:"activity"`
}

type artifactUpload struct {
	Name        string
	ContentType string
	Size        int64
	Comment     string
	Body        io.Reader
}

func (u artifactUpload) validate(maxBytes int64) error {
	if u.Name == "" {
		return fmt.Errorf("%w: artifact name is required", ErrInvalidInput)
	}
	if u.Size <= 0 {
		return fmt.Errorf("%w: empty upload", ErrInvalidInput)
	}
	if maxBytes > 0 && u.Size > maxBytes {
		return fmt.Errorf("%w: upload exceeds %d byte limit", ErrInvalidInput, maxBytes)
	}
	if !allowedContentTypes[u.ContentType] {
		return fmt.Errorf("%w: content type %q is not allowed", ErrInvalidInput, u.ContentType)
	}
	return nil
}

// getWorkspace authorizes actor against the owning exchange's current
// membership, then assembles the read model.
func (a *API) getWorkspace(ctx context.Context, actor uuid.UUID, exchangeID uuid.UUID) (WorkspaceView, error) {
	orm := a.store.ORM.WithContext(ctx)

	var ws workspaceModel
	if err := orm.First(&ws, "exchange_id = ?", exchangeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return WorkspaceView{}, fmt.Errorf("%w: no workspace for exchange %s", ErrNotFound, exchangeID)
		}
		return WorkspaceView{}, err
	}

	exchange, err := a.workspaceExchange(orm, ws.ExchangeID)
	if err != nil {
		return WorkspaceView{}, err
	}
	if !exchange.Participant(actor) {
		return WorkspaceView{}, fmt.Errorf("%w: not a member of this workspace", ErrForbidden)
	}

	var participants []userModel
	if err := orm.Find(&participants, "id IN ?", []uuid.UUID{exchange.RequesterID, exchange.ProviderID}).Error; err != nil {
		return WorkspaceView{}, err
	}

	var artifacts []artifactModel
	if err := orm.Order("created_at DESC").Find(&artifacts, "workspace_id = ?", ws.ID).Error; err != nil {
		return WorkspaceView{}, err
	}

	var activity []activityModel
	if err := orm.Order("created_at DESC, id DESC").Find(&activity, "workspace_id = ?", ws.ID).Error; err != nil {
		return WorkspaceView{}, err
	}

	view := WorkspaceView{
		Workspace: ws.toAPI(exchange.RequesterID, exchange.ProviderID),
	}
	for _, p := range participants {
		view.Participants = append(view.Participants, p.toAPI())
	}
	for _, art := range artifacts {
		view.Artifacts = append(view.Artifacts, art.toAPI())
	}
	for _, entry := range activity {
		view.Activity = append(view.Activity, entry.toAPI())
	}
	return view, nil
}

// uploadArtifact stores the file bytes, then commits the artifact row and
// its ledger entry in one transaction. The next version for (workspace,
// name) is computed under the workspace lock so concurrent uploads of the
// same name serialize into a gapless sequence.
func (a *API) uploadArtifact(ctx context.Context, actor uuid.UUID, workspaceID uuid.UUID, upload artifactUpload) (Artifact, error) {
	if err := upload.validate(a.config.MaxUploadBytes); err != nil {
		return Artifact{}, err
	}
	if a.store.S3 == nil {
		return Artifact{}, errors.New("object storage not configured")
	}

	orm := a.store.ORM.WithContext(ctx)

	var ws workspaceModel
	if err := orm.First(&ws, "id = ?", workspaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Artifact{}, fmt.Errorf("%w: workspace %s", ErrNotFound, workspaceID)
		}
		return Artifact{}, err
	}

	exchange, err := a.workspaceExchange(orm, ws.ExchangeID)
	if err != nil {
		return Artifact{}, err
	}
	if !exchange.Participant(actor) {
		return Artifact{}, fmt.Errorf("%w: not a member of this workspace", ErrForbidden)
	}
	if WorkspaceStatus(ws.Status) != WorkspaceActive {
		return Artifact{}, fmt.Errorf("%w: workspace is archived and read-only", ErrConflict)
	}

	// Bounded read: the HTTP layer caps the body, this re-checks before
	// any bytes reach storage.
	data, err := io.ReadAll(io.LimitReader(upload.Body, upload.Size+1))
	if err != nil {
		return Artifact{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > upload.Size {
		return Artifact{}, fmt.Errorf("%w: upload larger than declared size", ErrInvalidInput)
	}

	digest := sha256.Sum256(data)
	artifactID := uuid.New()
	key := fmt.Sprintf("workspaces/%s/%s", ws.ID, artifactID)

	putCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.store.S3.PutObject(putCtx, a.config.ArtifactBucket, key, bytes.NewReader(data), int64(len(data)), hex.EncodeToString(digest[:])); err != nil {
		return Artifact{}, fmt.Errorf("store artifact bytes: %w", err)
	}

	unlock := a.workspaceLocks.lock(ws.ID)
	defer unlock()

	var artifact Artifact
	err = orm.Transaction(func(tx *gorm.DB) error {
		model, err := registerArtifact(&gormArtifactRegistrar{tx: tx}, artifactModel{
			ID:          artifactID,
			WorkspaceID: ws.ID,
			UploaderID:  actor,
			Name:        upload.Name,
			ContentType: upload.ContentType,
			StorageKey:  key,
			SHA256:      hex.EncodeToString(digest[:]),
			Size:        int64(len(data)),
			Comment:     upload.Comment,
		})
		if err != nil {
			return err
		}
		artifact = model.toAPI()
		return nil
	})
	if err != nil {
		return Artifact{}, err
	}

	uploadsAccepted.Inc()
	return artifact, nil
}

// artifactRegistrar is the transactional surface of one artifact commit.
type artifactRegistrar interface {
	MaxArtifactVersion(workspaceID uuid.UUID, name string) (int, error)
	CreateArtifact(m *artifactModel) error
	AppendActivity(entry *activityModel) error
}

// registerArtifact allocates version = 1 + max(version) for the artifact's
// (workspace, name) pair and commits the row plus its ledger entry. The
// caller serializes per workspace, so the sequence stays gapless.
func registerArtifact(s artifactRegistrar, model artifactModel) (artifactModel, error) {
	maxVersion, err := s.MaxArtifactVersion(model.WorkspaceID, model.Name)
	if err != nil {
		return artifactModel{}, err
	}
	model.Version = maxVersion + 1

	if err := s.CreateArtifact(&model); err != nil {
		return artifactModel{}, err
	}

	entry := activityModel{
		WorkspaceID: model.WorkspaceID,
		ActorID:     model.UploaderID,
		Action:      ActionUploadFile,
		Detail: toJSONMap(map[string]any{
			"file_name": model.Name,
			"version":   model.Version,
		}),
	}
	if err := s.AppendActivity(&entry); err != nil {
		return artifactModel{}, err
	}
	return model, nil
}

type gormArtifactRegistrar struct {
	tx *gorm.DB
}

func (g *gormArtifactRegistrar) MaxArtifactVersion(workspaceID uuid.UUID, name string) (int, error) {
	var maxVersion int
	row := g.tx.Model(&artifactModel{}).
		Where("workspace_id = ? AND name = ?", workspaceID, name).
		Select("COALESCE(MAX(version), 0)")
	if err := row.Scan(&maxVersion).Error; err != nil {
		return 0, err
	}
	return maxVersion, nil
}

func (g *gormArtifactRegistrar) CreateArtifact(m *artifactModel) error {
	return g.tx.Create(m).Error
}

func (g *gormArtifactRegistrar) AppendActivity(entry *activityModel) error {
	return g.tx.Create(entry).Error
}

// artifactDownloadURL returns a presigned GET URL for a member.
func (a *API) artifactDownloadURL(ctx context.Context, actor uuid.UUID, workspaceID, artifactID uuid.UUID) (string, error) {
	if a.store.S3 == nil {
		return "", errors.New("object storage not configured")
	}

	orm := a.store.ORM.WithContext(ctx)

	var ws workspaceModel
	if err := orm.First(&ws, "id = ?", workspaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: workspace %s", ErrNotFound, workspaceID)
		}
		return "", err
	}

	exchange, err := a.workspaceExchange(orm, ws.ExchangeID)
	if err != nil {
		return "", err
	}
	if !exchange.Participant(actor) {
		return "", fmt.Errorf("%w: not a member of this workspace", ErrForbidden)
	}

	var model artifactModel
	if err := orm.First(&model, "id = ? AND workspace_id = ?", artifactID, ws.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: artifact %s", ErrNotFound, artifactID)
		}
		return "", err
	}

	return a.store.S3.PresignGet(ctx, a.config.ArtifactBucket, model.StorageKey, presignURLExpiry)
}

func (a *API) workspaceExchange(orm *gorm.DB, exchangeID uuid.UUID) (Exchange, error) {
	var model exchangeModel
	if err := orm.First(&model, "id = ?", exchangeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Exchange{}, fmt.Errorf("%w: exchange %s", ErrNotFound, exchangeID)
		}
		return Exchange{}, err
	}
	return model.toAPI(), nil
}
