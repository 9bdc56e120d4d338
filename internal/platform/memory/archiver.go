package memory

import (
	"context"
	"sync"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

// Archiver stores archived statements in memory under mem:// references
type Archiver struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewArchiver creates an empty archiver
func NewArchiver() *Archiver {
	return &Archiver{objects: make(map[string][]byte)}
}

// Archive implements reconciliation.Archiver. Objects are never overwritten.
func (a *Archiver) Archive(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ref := "mem://" + objectPath
	if _, ok := a.objects[objectPath]; ok {
		return "", errors.NewConflictError("archive object already exists").WithDetail("objectPath", objectPath)
	}
	a.objects[objectPath] = append([]byte(nil), data...)
	return ref, nil
}

// Object returns an archived object
func (a *Archiver) Object(objectPath string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[objectPath]
	return data, ok
}
