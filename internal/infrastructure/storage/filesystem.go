package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileSystemStorage stores artifacts under a base directory
type FileSystemStorage struct {
	basePath string
	logger   *zap.Logger
}

// FileSystemOption configures a FileSystemStorage
type FileSystemOption func(*FileSystemStorage)

// WithFSLogger sets the logger
func WithFSLogger(logger *zap.Logger) FileSystemOption {
	return func(s *FileSystemStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileSystemStorage creates the base directory if needed
func NewFileSystemStorage(basePath string, opts ...FileSystemOption) (*FileSystemStorage, error) {
	if basePath == "" {
		basePath = "./exports"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", abs, err)
	}

	s := &FileSystemStorage{basePath: abs, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put writes data to a temporary file and renames it into place, so readers
// never observe a partial artifact.
func (s *FileSystemStorage) Put(ctx context.Context, name, contentType string, data []byte) (*StoredArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".artifact-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return nil, fmt.Errorf("failed to move artifact into place: %w", err)
	}

	s.logger.Info("Artifact stored",
		zap.String("path", fullPath),
		zap.String("content_type", contentType),
		zap.Int("size", len(data)),
	)
	return &StoredArtifact{
		Name:     name,
		Location: "file://" + filepath.ToSlash(fullPath),
		Size:     int64(len(data)),
	}, nil
}

// Get opens a stored artifact
func (s *FileSystemStorage) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
		}
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return f, nil
}

// BasePath returns the absolute storage root
func (s *FileSystemStorage) BasePath() string {
	return s.basePath
}

func (s *FileSystemStorage) resolve(name string) (string, error) {
	if err := validateName(name); err != nil {
		s.logger.Warn("Blocked artifact name", zap.String("name", name))
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(name))
	if !strings.HasPrefix(fullPath, s.basePath+string(filepath.Separator)) {
		return "", ErrInvalidName
	}
	return fullPath, nil
}
