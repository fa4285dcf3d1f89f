package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/document/model"
	"docsync/internal/domain"
)

func TestComments(t *testing.T) {
	s, clock := newTestService(t)
	ctx := context.Background()
	meta := createDoc(t, s, "owner", "Doc")
	_, err := s.ShareWith(ctx, "owner", meta.ID, model.ShareRequest{UserID: "viewer", Role: model.RoleViewer})
	require.NoError(t, err)

	first, err := s.AddComment(ctx, "viewer", meta.ID, model.CommentRequest{SectionID: "intro", Text: "typo here"})
	require.NoError(t, err)
	clock.advance(1)
	_, err = s.AddComment(ctx, "owner", meta.ID, model.CommentRequest{SectionID: "body", Text: "expand"})
	require.NoError(t, err)
	clock.advance(1)
	reply, err := s.Reply(ctx, "owner", first.ID, model.ReplyRequest{Text: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "intro", reply.SectionID)
	assert.Equal(t, first.ID, reply.ParentCommentID)

	intro, err := s.ListComments(ctx, "viewer", meta.ID, "intro")
	require.NoError(t, err)
	require.Len(t, intro, 2)
	assert.Equal(t, first.ID, intro[0].ID)

	all, err := s.ListComments(ctx, "owner", meta.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.AddComment(ctx, "stranger", meta.ID, model.CommentRequest{SectionID: "intro", Text: "x"})
	assert.True(t, errors.Is(err, domain.ErrForbidden))
	_, err = s.AddComment(ctx, "owner", meta.ID, model.CommentRequest{Text: "no section"})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestResolveComment(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	meta := createDoc(t, s, "owner", "Doc")
	for _, u := range []string{"v1", "v2"} {
		_, err := s.ShareWith(ctx, "owner", meta.ID, model.ShareRequest{UserID: u, Role: model.RoleViewer})
		require.NoError(t, err)
	}

	c, err := s.AddComment(ctx, "v1", meta.ID, model.CommentRequest{SectionID: "s", Text: "question"})
	require.NoError(t, err)
	_, err = s.Reply(ctx, "v2", c.ID, model.ReplyRequest{Text: "answer"})
	require.NoError(t, err)

	assert.True(t, errors.Is(s.ResolveComment(ctx, "v2", c.ID), domain.ErrForbidden))
	require.NoError(t, s.ResolveComment(ctx, "v1", c.ID))

	left, err := s.ListComments(ctx, "owner", meta.ID, "")
	require.NoError(t, err)
	assert.Empty(t, left)

	assert.True(t, errors.Is(s.ResolveComment(ctx, "owner", c.ID), domain.ErrNotFound))
	assert.True(t, errors.Is(s.ResolveComment(ctx, "owner", "bad id"), domain.ErrInvalidInput))
}
