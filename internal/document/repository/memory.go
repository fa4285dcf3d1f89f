package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docsync/internal/document/model"
	"docsync/internal/domain"
)

// MemoryStore keeps everything in process memory. It is the default driver
// for local development and the store used by unit tests.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]*model.Document
	links    map[string]string // token -> document id
	comments map[string]*model.Comment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]*model.Document),
		links:    make(map[string]string),
		comments: make(map[string]*model.Comment),
	}
}

func cloneDocument(d *model.Document) *model.Document {
	c := *d
	c.ShareWith = append([]model.Share(nil), d.ShareWith...)
	c.ShareableLinks = make([]model.ShareableLink, len(d.ShareableLinks))
	for i, l := range d.ShareableLinks {
		c.ShareableLinks[i] = l
		if l.ExpiresAt != nil {
			exp := *l.ExpiresAt
			c.ShareableLinks[i].ExpiresAt = &exp
		}
	}
	c.Versions = append([]model.Version(nil), d.Versions...)
	return &c
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

func (m *MemoryStore) Insert(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	m.docs[doc.ID] = cloneDocument(doc)
	for _, l := range doc.ShareableLinks {
		m.links[l.Token] = doc.ID
	}
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, notFound("document", id)
	}
	return cloneDocument(d), nil
}

func (m *MemoryStore) FindByLinkToken(_ context.Context, token string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.links[token]
	if !ok {
		return nil, notFound("link", token)
	}
	d, ok := m.docs[id]
	if !ok {
		return nil, notFound("link", token)
	}
	return cloneDocument(d), nil
}

func (m *MemoryStore) FindByOwner(_ context.Context, ownerID string) ([]model.DocumentSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.DocumentSummary{}
	for _, d := range m.docs {
		if d.OwnerID != ownerID {
			continue
		}
		out = append(out, model.DocumentSummary{
			ID:        d.ID,
			Title:     d.Title,
			OwnerID:   d.OwnerID,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateContent(_ context.Context, id, content string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return notFound("document", id)
	}
	d.Content = content
	d.UpdatedAt = updatedAt
	return nil
}

func (m *MemoryStore) AppendVersion(_ context.Context, docID string, v model.Version, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return notFound("document", docID)
	}
	d.Versions = model.TrimVersions(append(d.Versions, v), keep)
	return nil
}

func (m *MemoryStore) PutShare(_ context.Context, docID string, share model.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return notFound("document", docID)
	}
	for i := range d.ShareWith {
		if d.ShareWith[i].UserID == share.UserID {
			d.ShareWith[i].Role = share.Role
			return nil
		}
	}
	d.ShareWith = append(d.ShareWith, share)
	return nil
}

func (m *MemoryStore) RemoveShare(_ context.Context, docID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return notFound("document", docID)
	}
	for i := range d.ShareWith {
		if d.ShareWith[i].UserID == userID {
			d.ShareWith = append(d.ShareWith[:i], d.ShareWith[i+1:]...)
			return nil
		}
	}
	return notFound("share", userID)
}

func (m *MemoryStore) AddLink(_ context.Context, docID string, link model.ShareableLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return notFound("document", docID)
	}
	if _, taken := m.links[link.Token]; taken {
		return ErrTokenTaken
	}
	d.ShareableLinks = append(d.ShareableLinks, link)
	m.links[link.Token] = docID
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return notFound("document", id)
	}
	for _, l := range d.ShareableLinks {
		delete(m.links, l.Token)
	}
	for cid, c := range m.comments {
		if c.DocumentID == id {
			delete(m.comments, cid)
		}
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryStore) InsertComment(_ context.Context, c *model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[c.DocumentID]; !ok {
		return notFound("document", c.DocumentID)
	}
	cp := *c
	m.comments[c.ID] = &cp
	return nil
}

func (m *MemoryStore) FindComment(_ context.Context, id string) (*model.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, notFound("comment", id)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) FindComments(_ context.Context, docID, sectionID string) ([]model.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Comment{}
	for _, c := range m.comments {
		if c.DocumentID != docID {
			continue
		}
		if sectionID != "" && c.SectionID != sectionID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteComment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return notFound("comment", id)
	}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		delete(m.comments, cur)
		for cid, c := range m.comments {
			if c.ParentCommentID == cur {
				queue = append(queue, cid)
			}
		}
	}
	return nil
}
