package triage

import "context"

// Store is the persistence interface for the triage tree. The tree is stored
// and replaced wholesale; the last save wins.
type Store interface {
	// Load returns the saved tree, or an empty DTO if nothing was saved yet.
	Load(ctx context.Context) (DTO, error)
	// Save replaces the saved tree.
	Save(ctx context.Context, dto DTO) error
}
