// Package imagestore persists the frames captured when a new identity is enrolled.
package imagestore

import (
	"context"
	"fmt"
	"io"

	"github.com/kozaktomas/face-recall/internal/config"
)

// Store writes and reads captured images by name.
//
// Names are flat file names such as "new_person_20240301_101500.jpg".
// Implementations must be safe for concurrent use.
type Store interface {
	// Save writes the image and returns the location recorded on the identity
	// (a filesystem path or an s3:// URL).
	Save(ctx context.Context, name string, data []byte) (string, error)

	// Open opens a previously saved image. Missing images return an error
	// wrapping os.ErrNotExist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// New creates the store selected by cfg.Backend.
func New(cfg config.ImagesConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		local, err := NewLocal(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return local, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("IMAGES_S3_BUCKET is required for the s3 backend")
		}
		return NewS3(NewS3Client(cfg), cfg.S3Bucket, cfg.S3Prefix), nil
	default:
		return nil, fmt.Errorf("unknown images backend %q", cfg.Backend)
	}
}
