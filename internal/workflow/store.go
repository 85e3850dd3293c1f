package workflow

import (
	"context"
	"errors"
)

// ErrNotFound reports a workflow id that does not exist in the store.
var ErrNotFound = errors.New("workflow not found")

// Store is the workflow configuration collaborator. At most one workflow
// is active at a time; SetActive with an empty id clears the active
// workflow.
type Store interface {
	LoadAll(ctx context.Context) ([]Definition, error)
	Save(ctx context.Context, defs []Definition) error
	SetActive(ctx context.Context, id string) error
	GetActive(ctx context.Context) (*Definition, error)
}
