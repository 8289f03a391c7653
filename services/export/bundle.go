package export

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"skillswap/pkg/db"
)

const (
	manifestFileName   = "manifest.yaml"
	artifactsTarPrefix = "artifacts"
)

type workspaceRow struct {
	ID         string `db:"id"`
	ExchangeID string `db:"exchange_id"`
	Status     string `db:"status"`
}

type artifactRow struct {
	Name        string    `db:"name"`
	Version     int       `db:"version"`
	ContentType string    `db:"content_type"`
	StorageKey  string    `db:"storage_key"`
	SHA256      string    `db:"sha256"`
	Size        int64     `db:"size"`
	UploaderID  string    `db:"uploader_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type activityRow struct {
	Action    string    `db:"action"`
	ActorID   string    `db:"actor_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Build exports a workspace as a signed tar.zst bundle: every stored
// artifact version plus a manifest carrying digests and the activity
// snapshot. Artifact bytes are fetched from object storage and verified
// against the registry's recorded digests before they enter the archive.
func Build(ctx context.Context, cfg BuildConfig) (*Manifest, error) {
	if cfg.WorkspaceID == uuid.Nil {
		return nil, errors.New("workspace id is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("artifact bucket is required")
	}
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.DB == nil {
		return nil, errors.New("database pool is required")
	}
	if cfg.S3 == nil {
		return nil, errors.New("s3 client is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	var ws workspaceRow
	err := db.Get(ctx, cfg.DB, &ws,
		`SELECT id, exchange_id, status FROM workspaces WHERE id = $1`, cfg.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}

	var artifacts []artifactRow
	err = db.Select(ctx, cfg.DB, &artifacts, `
        SELECT name, version, content_type, storage_key, sha256, size, uploader_id, created_at
        FROM artifacts
        WHERE workspace_id = $1
        ORDER BY name ASC, version ASC
    `, cfg.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}
	if len(artifacts) == 0 {
		return nil, errors.New("workspace has no artifacts to export")
	}

	var activity []activityRow
	err = db.Select(ctx, cfg.DB, &activity, `
        SELECT action, actor_id, created_at
        FROM activity_entries
        WHERE workspace_id = $1
        ORDER BY created_at ASC, id ASC
    `, cfg.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "skillswap-export-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	entries := make([]ManifestArtifact, 0, len(artifacts))
	tempPaths := make([]string, 0, len(artifacts))
	for i, art := range artifacts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tempPath := filepath.Join(tempDir, fmt.Sprintf("artifact-%d", i))
		sha, size, err := fetchObject(ctx, cfg, art.StorageKey, tempPath)
		if err != nil {
			return nil, fmt.Errorf("fetch %q v%d: %w", art.Name, art.Version, err)
		}
		if size != art.Size {
			return nil, fmt.Errorf("size mismatch for %q v%d: registry %d, storage %d", art.Name, art.Version, art.Size, size)
		}
		if !strings.EqualFold(sha, art.SHA256) {
			return nil, fmt.Errorf("sha256 mismatch for %q v%d", art.Name, art.Version)
		}

		entry, err := manifestEntry(art)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		tempPaths = append(tempPaths, tempPath)
	}

	manifest := &Manifest{
		Version:          "1",
		CreatedAt:        cfg.Now().UTC().Truncate(time.Second),
		WorkspaceID:      cfg.WorkspaceID,
		WorkspaceStatus:  ws.Status,
		Signer:           cfg.Signer.Recipient(),
		SigningPublicKey: cfg.Signer.PublicKeyBase64(),
		Artifacts:        entries,
		Activity:         activitySnapshot(activity),
	}
	if exchangeID, err := uuid.Parse(ws.ExchangeID); err == nil {
		manifest.ExchangeID = exchangeID
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for signing: %w", err)
	}
	sig, err := cfg.Signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}
	manifest.Signature = sig

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	if err := writeBundle(cfg.Output, manifestBytes, entries, tempPaths); err != nil {
		return nil, err
	}

	fmt.Fprintf(cfg.Stdout, "wrote bundle %s (%d artifacts)\n", cfg.Output, len(entries))
	return manifest, nil
}

func manifestEntry(art artifactRow) (ManifestArtifact, error) {
	uploader, err := uuid.Parse(art.UploaderID)
	if err != nil {
		return ManifestArtifact{}, fmt.Errorf("uploader id for %q: %w", art.Name, err)
	}
	return ManifestArtifact{
		Path:        fmt.Sprintf("v%d/%s", art.Version, art.Name),
		Name:        art.Name,
		Version:     art.Version,
		ContentType: art.ContentType,
		Size:        art.Size,
		SHA256:      art.SHA256,
		UploaderID:  uploader,
		UploadedAt:  art.CreatedAt.UTC(),
	}, nil
}

func activitySnapshot(rows []activityRow) []ManifestActivity {
	snapshot := make([]ManifestActivity, 0, len(rows))
	for _, row := range rows {
		actor, err := uuid.Parse(row.ActorID)
		if err != nil {
			continue
		}
		snapshot = append(snapshot, ManifestActivity{
			Action:  row.Action,
			ActorID: actor,
			At:      row.CreatedAt.UTC(),
		})
	}
	return snapshot
}

// fetchObject streams one object into path, returning its digest and size.
func fetchObject(ctx context.Context, cfg BuildConfig, key, path string) (string, int64, error) {
	body, err := cfg.S3.GetObject(ctx, cfg.Bucket, key)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()

	file, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(file, hash), body)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

func writeBundle(output string, manifest []byte, entries []ManifestArtifact, tempPaths []string) error {
	dir := filepath.Dir(output)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer file.Close()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	defer encoder.Close()

	tw := tar.NewWriter(encoder)
	defer tw.Close()

	manifestHeader := &tar.Header{
		Name:     manifestFileName,
		Mode:     0o644,
		Size:     int64(len(manifest)),
		ModTime:  time.Now().UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(manifestHeader); err != nil {
		return fmt.Errorf("write manifest header: %w", err)
	}
	if _, err := tw.Write(manifest); err != nil {
		return fmt.Errorf("write manifest body: %w", err)
	}

	for i, entry := range entries {
		src, err := os.Open(tempPaths[i])
		if err != nil {
			return fmt.Errorf("open %q: %w", entry.Path, err)
		}

		header := &tar.Header{
			Name:     filepath.ToSlash(filepath.Join(artifactsTarPrefix, entry.Path)),
			Mode:     0o644,
			Size:     entry.Size,
			ModTime:  entry.UploadedAt,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			src.Close()
			return fmt.Errorf("write header for %q: %w", entry.Path, err)
		}
		if _, err := io.Copy(tw, src); err != nil {
			src.Close()
			return fmt.Errorf("copy %q: %w", entry.Path, err)
		}
		src.Close()
	}

	return nil
}

// Verify extracts a bundle, checks the manifest signature, and recomputes
// every artifact digest against the manifest.
func Verify(ctx context.Context, cfg VerifyConfig) (*Manifest, error) {
	if cfg.BundlePath == "" {
		return nil, errors.New("bundle file is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	bundleFile, err := os.Open(cfg.BundlePath)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer bundleFile.Close()

	decoder, err := zstd.NewReader(bundleFile)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	tempDir, err := os.MkdirTemp("", "skillswap-verify-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	tr := tar.NewReader(decoder)
	var (
		manifestBytes []byte
		files         = map[string]string{}
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Clean(header.Name)
		if name == manifestFileName {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("read manifest: %w", err)
			}
			manifestBytes = data
			continue
		}

		targetPath := filepath.Join(tempDir, name)
		if !strings.HasPrefix(targetPath, tempDir) {
			return nil, fmt.Errorf("invalid entry path %q", name)
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir for %q: %w", name, err)
		}
		out, err := os.Create(targetPath)
		if err != nil {
			return nil, fmt.Errorf("create temp file for %q: %w", name, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return nil, fmt.Errorf("write temp file for %q: %w", name, err)
		}
		out.Close()
		files[filepath.ToSlash(name)] = targetPath
	}

	if len(manifestBytes) == 0 {
		return nil, errors.New("bundle missing manifest.yaml")
	}

	var manifest Manifest
	if err := yaml.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if manifest.Version != "1" {
		return nil, fmt.Errorf("unsupported manifest version %q", manifest.Version)
	}
	if manifest.Signature == "" {
		return nil, errors.New("manifest missing signature")
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for verification: %w", err)
	}
	if err := cfg.Signer.Verify(payload, manifest.Signature, manifest.SigningPublicKey); err != nil {
		return nil, fmt.Errorf("verify manifest signature: %w", err)
	}

	for _, art := range manifest.Artifacts {
		tarPath := filepath.ToSlash(filepath.Join(artifactsTarPrefix, art.Path))
		tempPath, ok := files[tarPath]
		if !ok {
			return nil, fmt.Errorf("artifact %q missing from archive", art.Path)
		}
		if err := checkDigest(tempPath, art); err != nil {
			return nil, err
		}
	}

	fmt.Fprintf(cfg.Stdout, "verified bundle for workspace %s (%d artifacts, signed %s)\n",
		manifest.WorkspaceID, len(manifest.Artifacts), manifest.CreatedAt.Format(time.RFC3339))
	return &manifest, nil
}

func checkDigest(path string, art ManifestArtifact) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", art.Path, err)
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return fmt.Errorf("hash %q: %w", art.Path, err)
	}
	if size != art.Size {
		return fmt.Errorf("size mismatch for %q: expected %d got %d", art.Path, art.Size, size)
	}
	computed := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(computed, art.SHA256) {
		return fmt.Errorf("sha256 mismatch for %q", art.Path)
	}
	return nil
}
