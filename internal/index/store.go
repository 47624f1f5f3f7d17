package index

import (
	"context"
	"errors"
)

// ErrDuplicate reports an attempt to save a second package with the same
// (name, filename). Duplicates are a conflict, never an overwrite.
var ErrDuplicate = errors.New("duplicate package filename")

// Store is the boundary to the persistent package metadata store. The query
// engine behind it is an external collaborator; the in-memory implementation
// below serves tests and single-node deployments.
type Store interface {
	// All returns every package stored for the normalized project name.
	All(ctx context.Context, name string) ([]*Package, error)

	// Fetch returns the package with the given filename, or nil when absent.
	Fetch(ctx context.Context, filename string) (*Package, error)

	// Distinct returns the sorted distinct normalized project names.
	Distinct(ctx context.Context) ([]string, error)

	// Save persists a new package record. Returns ErrDuplicate when a record
	// with the same filename already exists.
	Save(ctx context.Context, pkg *Package) error

	// Delete removes a package record. Deleting an absent record is an error.
	Delete(ctx context.Context, pkg *Package) error
}
