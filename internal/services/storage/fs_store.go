package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
)

// FSStore writes artifacts below a base directory
type FSStore struct {
	baseDir string
	enc     Encoder
	keys    *keyReserver
}

func NewFSStore(baseDir string, enc Encoder) (*FSStore, error) {
	if baseDir == "" {
		baseDir = "images"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir %s: %w", baseDir, err)
	}
	log.Info().Str("dir", baseDir).Msg("fs_artifact_store_ready")
	return &FSStore{baseDir: baseDir, enc: enc, keys: newKeyReserver()}, nil
}

func (s *FSStore) Save(ctx context.Context, cameraID int64, raw, annotated *models.Frame, result *models.DetectionResult) (*models.ArtifactPaths, error) {
	arts, paths, err := encodeArtifacts(ctx, s.keys, s.exists, s.enc, cameraID, raw, annotated, result)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(s.baseDir, CameraDir(cameraID)), 0o755); err != nil {
		return nil, fmt.Errorf("create camera dir: %w", err)
	}

	written := make([]string, 0, len(arts))
	for _, a := range arts {
		if err := ctx.Err(); err != nil {
			s.removeAll(written)
			return nil, err
		}
		full := filepath.Join(s.baseDir, filepath.FromSlash(a.key))
		if err := writeFileAtomic(full, a.data); err != nil {
			s.removeAll(written)
			return nil, fmt.Errorf("write %s: %w", a.key, err)
		}
		written = append(written, full)
	}
	return paths, nil
}

func (s *FSStore) Delete(_ context.Context, paths models.ArtifactPaths) error {
	var errs []error
	for _, key := range []string{paths.Raw, paths.Annotated, paths.Result} {
		if key == "" {
			continue
		}
		if !validKey(key) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidKey, key))
			continue
		}
		err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(key)))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FSStore) Read(_ context.Context, key string) ([]byte, string, error) {
	if !validKey(key) {
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, "", err
	}
	return data, contentTypeFor(key), nil
}

func (s *FSStore) exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FSStore) removeAll(files []string) {
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("file", f).Msg("artifact_cleanup_failed")
		}
	}
}

// writeFileAtomic writes through a temp file so readers never see partial artifacts
func writeFileAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), name)
}
