// Package storage persists rendered report artifacts on the local file
// system or in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	infraconfig "github.com/orchard/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Storage types
const (
	TypeNone       = "none"
	TypeFilesystem = "filesystem"
	TypeS3         = "s3"
)

// ErrInvalidName is returned for artifact names that could escape the storage root
var ErrInvalidName = errors.New("invalid artifact name")

// ErrArtifactNotFound is returned by Get when no artifact has the given name
var ErrArtifactNotFound = errors.New("artifact not found")

// StoredArtifact describes a persisted artifact
type StoredArtifact struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
}

// ArtifactStorage stores rendered exports. Put either stores the whole
// artifact or nothing.
type ArtifactStorage interface {
	Put(ctx context.Context, name, contentType string, data []byte) (*StoredArtifact, error)
	Get(ctx context.Context, name string) (io.ReadCloser, error)
}

// NewFromConfig builds the configured storage. It returns nil, nil when
// storage is disabled.
func NewFromConfig(ctx context.Context, cfg *infraconfig.StorageConfig, logger *zap.Logger) (ArtifactStorage, error) {
	switch cfg.Type {
	case "", TypeNone:
		return nil, nil
	case TypeFilesystem:
		return NewFileSystemStorage(cfg.LocalPath, WithFSLogger(logger))
	case TypeS3:
		s, err := NewS3ArtifactStorage(ctx, cfg, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// validateName rejects empty, absolute and parent-relative names
func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return ErrInvalidName
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return ErrInvalidName
		}
	}
	return nil
}
