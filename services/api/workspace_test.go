package api

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// memoryArtifactRegistrar records committed artifact rows; callers are
// expected to serialize, mirroring the per-workspace keyed lock.
type memoryArtifactRegistrar struct {
	artifacts []artifactModel
	activity  []activityModel
}

func (m *memoryArtifactRegistrar) MaxArtifactVersion(workspaceID uuid.UUID, name string) (int, error) {
	maxVersion := 0
	for _, art := range m.artifacts {
		if art.WorkspaceID == workspaceID && art.Name == name && art.Version > maxVersion {
			maxVersion = art.Version
		}
	}
	return maxVersion, nil
}

func (m *memoryArtifactRegistrar) CreateArtifact(model *artifactModel) error {
	m.artifacts = append(m.artifacts, *model)
	return nil
}

func (m *memoryArtifactRegistrar) AppendActivity(entry *activityModel) error {
	m.activity = append(m.activity, *entry)
	return nil
}

func TestRegisterArtifactVersionsPerName(t *testing.T) {
	registrar := &memoryArtifactRegistrar{}
	workspaceID := uuid.New()
	uploader := uuid.New()

	upload := func(name string) artifactModel {
		model, err := registerArtifact(registrar, artifactModel{
			ID:          uuid.New(),
			WorkspaceID: workspaceID,
			UploaderID:  uploader,
			Name:        name,
			ContentType: "application/pdf",
			Size:        10,
		})
		if err != nil {
			t.Fatalf("registerArtifact(%q) error = %v", name, err)
		}
		return model
	}

	if got := upload("notes.pdf").Version; got != 1 {
		t.Fatalf("first notes.pdf version = %d, want 1", got)
	}
	if got := upload("notes.pdf").Version; got != 2 {
		t.Fatalf("second notes.pdf version = %d, want 2", got)
	}
	// A different logical name starts its own sequence.
	if got := upload("diagram.png").Version; got != 1 {
		t.Fatalf("first diagram.png version = %d, want 1", got)
	}
	if got := upload("notes.pdf").Version; got != 3 {
		t.Fatalf("third notes.pdf version = %d, want 3", got)
	}

	if len(registrar.activity) != 4 {
		t.Fatalf("activity entries = %d, want one per upload", len(registrar.activity))
	}
	for _, entry := range registrar.activity {
		if entry.Action != ActionUploadFile {
			t.Fatalf("activity action = %s, want %s", entry.Action, ActionUploadFile)
		}
	}
}

func TestRegisterArtifactConcurrentSameName(t *testing.T) {
	registrar := &memoryArtifactRegistrar{}
	locks := newEntityLocks()
	workspaceID := uuid.New()

	const uploads = 20
	var wg sync.WaitGroup
	wg.Add(uploads)
	for i := 0; i < uploads; i++ {
		go func() {
			defer wg.Done()
			unlock := locks.lock(workspaceID)
			defer unlock()
			if _, err := registerArtifact(registrar, artifactModel{
				ID:          uuid.New(),
				WorkspaceID: workspaceID,
				UploaderID:  uuid.New(),
				Name:        "notes.pdf",
				ContentType: "application/pdf",
				Size:        10,
			}); err != nil {
				t.Errorf("registerArtifact() error = %v", err)
			}
		}()
	}
	wg.Wait()

	seen := make(map[int]bool, uploads)
	for _, art := range registrar.artifacts {
		if seen[art.Version] {
			t.Fatalf("version %d allocated twice", art.Version)
		}
		seen[art.Version] = true
	}
	for v := 1; v <= uploads; v++ {
		if !seen[v] {
			t.Fatalf("version sequence has a gap at %d", v)
		}
	}
}

func TestArtifactUploadValidate(t *testing.T) {
	const maxBytes = 1 << 20

	valid := artifactUpload{
		Name:        "notes.pdf",
		ContentType: "application/pdf",
		Size:        1024,
		Body:        strings.NewReader("pdf bytes"),
	}

	tests := []struct {
		name    string
		mutate  func(u artifactUpload) artifactUpload
		wantErr bool
	}{
		{"pdf passes", func(u artifactUpload) artifactUpload { return u }, false},
		{"png passes", func(u artifactUpload) artifactUpload {
			u.ContentType = "image/png"
			return u
		}, false},
		{"zip passes", func(u artifactUpload) artifactUpload {
			u.ContentType = "application/zip"
			return u
		}, false},
		{"missing name", func(u artifactUpload) artifactUpload {
			u.Name = ""
			return u
		}, true},
		{"empty upload", func(u artifactUpload) artifactUpload {
			u.Size = 0
			return u
		}, true},
		{"negative size", func(u artifactUpload) artifactUpload {
			u.Size = -1
			return u
		}, true},
		{"over the limit", func(u artifactUpload) artifactUpload {
			u.Size = maxBytes + 1
			return u
		}, true},
		{"executable rejected", func(u artifactUpload) artifactUpload {
			u.ContentType = "application/x-msdownload"
			return u
		}, true},
		{"missing content type", func(u artifactUpload) artifactUpload {
			u.ContentType = ""
			return u
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(valid).validate(maxBytes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("validate() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestArtifactUploadValidateUnlimited(t *testing.T) {
	upload := artifactUpload{
		Name:        "big.zip",
		ContentType: "application/zip",
		Size:        1 << 30,
	}
	if err := upload.validate(0); err != nil {
		t.Fatalf("validate() with no limit returned %v", err)
	}
}
