package creator

import "context"

// Store persists creator records. CreateCreator fails with
// patron.ErrDuplicateCreator when the ID exists; GetCreator and UpdateCreator
// fail with patron.ErrCreatorNotFound when it does not.
type Store interface {
	CreateCreator(ctx context.Context, c *Creator) error
	GetCreator(ctx context.Context, creatorID string) (*Creator, error)
	UpdateCreator(ctx context.Context, c *Creator) error
	ListCreators(ctx context.Context, opts ListOpts) ([]*Creator, error)
}
