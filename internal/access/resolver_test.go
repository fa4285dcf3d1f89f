package access

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/document/model"
	"docsync/internal/domain"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testDocument() *model.Document {
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)
	return &model.Document{
		ID:      "doc-1",
		OwnerID: "owner",
		ShareWith: []model.Share{
			{UserID: "editor", Role: model.RoleEditor},
			{UserID: "viewer", Role: model.RoleViewer},
		},
		ShareableLinks: []model.ShareableLink{
			{Token: "edit-link", Role: model.RoleEditor, CreatedAt: now},
			{Token: "view-link", Role: model.RoleViewer, CreatedAt: now, ExpiresAt: &future},
			{Token: "dead-link", Role: model.RoleEditor, CreatedAt: now, ExpiresAt: &past},
		},
	}
}

func TestResolve(t *testing.T) {
	doc := testDocument()

	tests := []struct {
		name   string
		actor  Actor
		role   model.Role
		source Source
	}{
		{"owner", Actor{UserID: "owner"}, model.RoleOwner, SourceOwner},
		{"shared editor", Actor{UserID: "editor"}, model.RoleEditor, SourceShare},
		{"shared viewer", Actor{UserID: "viewer"}, model.RoleViewer, SourceShare},
		{"anonymous edit link", Actor{LinkToken: "edit-link"}, model.RoleEditor, SourceLink},
		{"viewer link", Actor{LinkToken: "view-link"}, model.RoleViewer, SourceLink},
		{"expired link", Actor{LinkToken: "dead-link"}, model.RoleNone, SourceNone},
		{"unknown link", Actor{LinkToken: "nope"}, model.RoleNone, SourceNone},
		{"stranger", Actor{UserID: "stranger"}, model.RoleNone, SourceNone},
		{"nobody", Actor{}, model.RoleNone, SourceNone},
		{"share wins over link", Actor{UserID: "viewer", LinkToken: "edit-link"}, model.RoleViewer, SourceShare},
		{"owner wins over link", Actor{UserID: "owner", LinkToken: "view-link"}, model.RoleOwner, SourceOwner},
		{"stranger with link", Actor{UserID: "stranger", LinkToken: "view-link"}, model.RoleViewer, SourceLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Resolve(doc, tt.actor, now)
			assert.Equal(t, tt.role, g.Role)
			assert.Equal(t, tt.source, g.Source)
		})
	}
}

func TestResolveOwnerOnlyForOwnerIdentity(t *testing.T) {
	doc := testDocument()
	for _, id := range []string{"", "editor", "viewer", "stranger", "OWNER"} {
		assert.NotEqual(t, model.RoleOwner, Resolve(doc, Actor{UserID: id}, now).Role, "identity %q", id)
	}
	// An empty owner must never match an anonymous actor.
	assert.Equal(t, model.RoleNone, Resolve(&model.Document{}, Actor{}, now).Role)
}

func TestResolveIsDeterministicAndPure(t *testing.T) {
	doc := testDocument()
	before := *doc
	first := Resolve(doc, Actor{UserID: "editor", LinkToken: "view-link"}, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(doc, Actor{UserID: "editor", LinkToken: "view-link"}, now))
	}
	assert.Equal(t, before, *doc)
}

func TestExpiredLinkNeverReactivates(t *testing.T) {
	doc := testDocument()
	for i := 0; i < 5; i++ {
		later := now.Add(time.Duration(i) * time.Hour)
		assert.Equal(t, model.RoleNone, Resolve(doc, Actor{LinkToken: "dead-link"}, later).Role)
		_, err := FindLink(doc, "dead-link", later)
		assert.True(t, errors.Is(err, domain.ErrExpired))
	}
}

func TestGrantPredicates(t *testing.T) {
	owner := Grant{Role: model.RoleOwner, Source: SourceOwner}
	editorLink := Grant{Role: model.RoleEditor, Source: SourceLink}
	viewer := Grant{Role: model.RoleViewer, Source: SourceShare}

	assert.True(t, owner.CanWrite())
	assert.True(t, owner.IsOwner())
	assert.True(t, owner.IsMember())

	assert.True(t, editorLink.CanWrite())
	assert.False(t, editorLink.IsMember())
	assert.False(t, editorLink.IsOwner())

	assert.True(t, viewer.CanRead())
	assert.False(t, viewer.CanWrite())
	assert.True(t, viewer.IsMember())

	assert.False(t, noGrant.CanRead())
}

func TestFindLink(t *testing.T) {
	doc := testDocument()

	l, err := FindLink(doc, "view-link", now)
	require.NoError(t, err)
	assert.Equal(t, model.RoleViewer, l.Role)

	_, err = FindLink(doc, "missing", now)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = FindLink(nil, "view-link", now)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
