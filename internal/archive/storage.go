// Package archive keeps the raw bytes of every accepted payment notification
// so a disputed status change can be replayed against the signature later.
package archive

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("archived payload not found")
	ErrInvalidID = errors.New("invalid archive id")
)

// validIDPattern matches only alphanumeric IDs (no path traversal possible)
var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

func validateID(id string) error {
	if id == "" || len(id) > 64 || !validIDPattern.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

// NewID returns a fresh archive id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Storage defines the interface for payload storage.
type Storage interface {
	Save(ctx context.Context, id string, data io.Reader) (int64, error)
	Load(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
}
