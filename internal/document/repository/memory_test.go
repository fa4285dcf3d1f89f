package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/document/model"
	"docsync/internal/domain"
)

func seedDocument(t *testing.T, m *MemoryStore, id, owner string) *model.Document {
	t.Helper()
	now := time.Now().UTC()
	doc := &model.Document{ID: id, Title: "Doc " + id, OwnerID: owner, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.Insert(context.Background(), doc))
	return doc
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedDocument(t, m, "d1", "u1")

	got, err := m.FindByID(ctx, "d1")
	require.NoError(t, err)
	got.Title = "mutated"
	got.ShareWith = append(got.ShareWith, model.Share{UserID: "x", Role: model.RoleEditor})

	again, err := m.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Doc d1", again.Title)
	assert.Empty(t, again.ShareWith)
}

func TestMemoryStoreAppendVersionTrims(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedDocument(t, m, "d1", "u1")

	for i := 1; i <= 25; i++ {
		require.NoError(t, m.AppendVersion(ctx, "d1", model.Version{ID: fmt.Sprintf("v%d", i)}, 20))
	}

	doc, err := m.FindByID(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, doc.Versions, 20)
	assert.Equal(t, "v6", doc.Versions[0].ID)
	assert.Equal(t, "v25", doc.Versions[19].ID)

	err = m.AppendVersion(ctx, "missing", model.Version{ID: "v"}, 20)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemoryStoreLinksAreGloballyUnique(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedDocument(t, m, "d1", "u1")
	seedDocument(t, m, "d2", "u2")

	link := model.ShareableLink{Token: "tok", Role: model.RoleViewer, CreatedAt: time.Now()}
	require.NoError(t, m.AddLink(ctx, "d1", link))
	assert.ErrorIs(t, m.AddLink(ctx, "d2", link), ErrTokenTaken)

	doc, err := m.FindByLinkToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.ID)

	_, err = m.FindByLinkToken(ctx, "other")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemoryStoreShares(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedDocument(t, m, "d1", "u1")

	require.NoError(t, m.PutShare(ctx, "d1", model.Share{UserID: "u2", Role: model.RoleViewer}))
	require.NoError(t, m.PutShare(ctx, "d1", model.Share{UserID: "u2", Role: model.RoleEditor}))

	doc, _ := m.FindByID(ctx, "d1")
	assert.Equal(t, []model.Share{{UserID: "u2", Role: model.RoleEditor}}, doc.ShareWith)

	require.NoError(t, m.RemoveShare(ctx, "d1", "u2"))
	assert.True(t, errors.Is(m.RemoveShare(ctx, "d1", "u2"), domain.ErrNotFound))
}

func TestMemoryStoreDeleteCascadesComments(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedDocument(t, m, "d1", "u1")
	seedDocument(t, m, "d2", "u1")
	require.NoError(t, m.AddLink(ctx, "d1", model.ShareableLink{Token: "tok", Role: model.RoleViewer}))

	now := time.Now()
	require.NoError(t, m.InsertComment(ctx, &model.Comment{ID: "c1", DocumentID: "d1", SectionID: "s", CreatedAt: now}))
	require.NoError(t, m.InsertComment(ctx, &model.Comment{ID: "c2", DocumentID: "d1", SectionID: "s", ParentCommentID: "c1", CreatedAt: now}))
	require.NoError(t, m.InsertComment(ctx, &model.Comment{ID: "c3", DocumentID: "d2", SectionID: "s", CreatedAt: now}))

	require.NoError(t, m.Delete(ctx, "d1"))

	_, err := m.FindByID(ctx, "d1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = m.FindByLinkToken(ctx, "tok")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = m.FindComment(ctx, "c2")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = m.FindComment(ctx, "c3")
	assert.NoError(t, err)
}

func TestMemoryStoreDeleteCommentRemovesReplies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedDocument(t, m, "d1", "u1")

	base := time.Now()
	for i, c := range []model.Comment{
		{ID: "root", SectionID: "s1"},
		{ID: "child", SectionID: "s1", ParentCommentID: "root"},
		{ID: "grandchild", SectionID: "s1", ParentCommentID: "child"},
		{ID: "sibling", SectionID: "s2"},
	} {
		c.DocumentID = "d1"
		c.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, m.InsertComment(ctx, &c))
	}

	inSection, err := m.FindComments(ctx, "d1", "s1")
	require.NoError(t, err)
	require.Len(t, inSection, 3)
	assert.Equal(t, "root", inSection[0].ID)

	require.NoError(t, m.DeleteComment(ctx, "root"))

	all, err := m.FindComments(ctx, "d1", "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "sibling", all[0].ID)
}

func TestMemoryStoreFindByOwnerNewestFirst(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedDocument(t, m, "old", "u1")
	seedDocument(t, m, "new", "u1")
	seedDocument(t, m, "other", "u2")
	require.NoError(t, m.UpdateContent(ctx, "new", "x", time.Now().Add(time.Hour)))

	docs, err := m.FindByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new", docs[0].ID)
}
