package repository

import (
	"context"
	"errors"
	"time"

	"docsync/internal/document/model"
)

// Store is the document store the core consumes. Lookups that miss return an
// error wrapping domain.ErrNotFound; every other error is a store failure.
type Store interface {
	Insert(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id string) (*model.Document, error)
	FindByLinkToken(ctx context.Context, token string) (*model.Document, error)
	FindByOwner(ctx context.Context, ownerID string) ([]model.DocumentSummary, error)
	UpdateContent(ctx context.Context, id, content string, updatedAt time.Time) error
	// AppendVersion appends v to the document's history and trims it to the
	// newest keep entries.
	AppendVersion(ctx context.Context, docID string, v model.Version, keep int) error
	PutShare(ctx context.Context, docID string, share model.Share) error
	RemoveShare(ctx context.Context, docID, userID string) error
	AddLink(ctx context.Context, docID string, link model.ShareableLink) error
	// Delete removes the document and all of its comments.
	Delete(ctx context.Context, id string) error

	InsertComment(ctx context.Context, c *model.Comment) error
	FindComment(ctx context.Context, id string) (*model.Comment, error)
	FindComments(ctx context.Context, docID, sectionID string) ([]model.Comment, error)
	// DeleteComment removes the comment and every reply below it.
	DeleteComment(ctx context.Context, id string) error
}

// ErrTokenTaken is returned by AddLink when the token already belongs to a
// link anywhere in the store.
var ErrTokenTaken = errors.New("link token already in use")
