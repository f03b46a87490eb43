// internal/storage/archive/interface.go
package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/newthinker/macross/internal/core"
)

// Storage is the blob store behind the price cache and published run reports.
// Read of a missing path returns an error matching core.ErrNotFound.
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Backend names accepted by Open
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config selects and configures a storage backend
type Config struct {
	Backend string   `mapstructure:"backend"`
	Path    string   `mapstructure:"path"` // base directory for the local backend
	S3      S3Config `mapstructure:"s3"`
}

// Open creates the backend named by cfg.Backend.
func Open(cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendLocal:
		path := cfg.Path
		if path == "" {
			path = "data"
		}
		return NewLocalFS(path)
	case BackendS3:
		if cfg.S3.Bucket == "" {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.s3.bucket"))
		}
		return NewS3(cfg.S3)
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown storage backend %q", cfg.Backend))
	}
}
