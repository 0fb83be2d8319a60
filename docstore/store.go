/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package docstore is a small path-addressed document store with atomic
// updates and change subscriptions. Documents are opaque byte slices,
// usually JSON.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("docstore: document not found")
	ErrExists   = errors.New("docstore: document already exists")
	ErrConflict = errors.New("docstore: too many concurrent updates")
	ErrClosed   = errors.New("docstore: store closed")
)

// Snapshot is the state of a document at one point in time. Err is set
// when the watch itself failed; Exists and Data are then meaningless.
type Snapshot struct {
	Path   string
	Exists bool
	Data   []byte
	Err    error
}

// UpdateFunc receives the current document and returns its replacement.
// Returning an error aborts the update and the error is passed through.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is implemented by every backend.
type Store interface {
	// Get returns the document at path, or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)

	// Create writes data at path only if nothing is there yet, else ErrExists.
	Create(ctx context.Context, path string, data []byte) error

	// Set writes data at path unconditionally.
	Set(ctx context.Context, path string, data []byte) error

	// Update atomically replaces the document at path with fn's result.
	Update(ctx context.Context, path string, fn UpdateFunc) error

	// Delete removes the document at path. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error

	// Watch delivers the current snapshot of path and then one per change,
	// until ctx is done, at which point the channel is closed.
	Watch(ctx context.Context, path string) (<-chan Snapshot, error)

	Close() error
}

func send(ctx context.Context, out chan<- Snapshot, snap Snapshot) bool {
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)
