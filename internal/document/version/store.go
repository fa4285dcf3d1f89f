// Package version keeps the bounded history of document snapshots.
package version

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docsync/internal/document/model"
	"docsync/internal/domain"
	"docsync/pkg/metrics"
)

// RetentionCap is the number of snapshots kept per document.
const RetentionCap = 20

// Repository is the slice of the document store the version store writes to.
type Repository interface {
	AppendVersion(ctx context.Context, docID string, v model.Version, keep int) error
	UpdateContent(ctx context.Context, id, content string, updatedAt time.Time) error
}

type Store struct {
	repo Repository
	now  func() time.Time
}

func NewStore(repo Repository, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{repo: repo, now: now}
}

// Append records content as the newest snapshot of doc and evicts the oldest
// snapshots beyond RetentionCap. doc.Versions is updated to match the store.
func (s *Store) Append(ctx context.Context, doc *model.Document, content, authorID string) (model.Version, error) {
	v := model.Version{
		ID:        uuid.NewString(),
		Content:   content,
		AuthorID:  authorID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AppendVersion(ctx, doc.ID, v, RetentionCap); err != nil {
		return model.Version{}, fmt.Errorf("append version to %s: %w", doc.ID, err)
	}

	before := len(doc.Versions) + 1
	doc.Versions = model.TrimVersions(append(doc.Versions, v), RetentionCap)
	if evicted := before - len(doc.Versions); evicted > 0 {
		metrics.VersionsEvicted.Add(float64(evicted))
	}
	return v, nil
}

// List returns the history newest first, without content.
func List(doc *model.Document) []model.VersionSummary {
	out := make([]model.VersionSummary, 0, len(doc.Versions))
	for i := len(doc.Versions) - 1; i >= 0; i-- {
		v := doc.Versions[i]
		out = append(out, model.VersionSummary{ID: v.ID, AuthorID: v.AuthorID, CreatedAt: v.CreatedAt})
	}
	return out
}

// Restore makes the snapshot versionID the current content of doc. It does
// not create a new snapshot.
func (s *Store) Restore(ctx context.Context, doc *model.Document, versionID string) (string, time.Time, error) {
	for _, v := range doc.Versions {
		if v.ID != versionID {
			continue
		}
		updatedAt := s.now().UTC()
		if err := s.repo.UpdateContent(ctx, doc.ID, v.Content, updatedAt); err != nil {
			return "", time.Time{}, fmt.Errorf("restore %s: %w", versionID, err)
		}
		doc.Content = v.Content
		doc.UpdatedAt = updatedAt
		return v.Content, updatedAt, nil
	}
	return "", time.Time{}, fmt.Errorf("version %s: %w", versionID, domain.ErrNotFound)
}
