package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docsync/internal/document/model"
	"docsync/internal/domain"
)

// newTestMongoStore connects to MONGODB_TEST_URI and skips when it is unset.
func newTestMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database("docsync_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	store, err := NewMongoStore(ctx, db)
	require.NoError(t, err)
	return store
}

func TestMongoStoreVersionsAndLinks(t *testing.T) {
	store := newTestMongoStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	doc := &model.Document{ID: uuid.NewString(), Title: "Spec", OwnerID: "u1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Insert(ctx, doc))

	for i := 1; i <= 21; i++ {
		v := model.Version{ID: uuid.NewString(), Content: fmt.Sprintf("Hello %d", i), CreatedAt: now}
		require.NoError(t, store.AppendVersion(ctx, doc.ID, v, 20))
	}
	got, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got.Versions, 20)
	assert.Equal(t, "Hello 2", got.Versions[0].Content)

	link := model.ShareableLink{Token: uuid.NewString(), Role: model.RoleEditor, CreatedAt: now}
	require.NoError(t, store.AddLink(ctx, doc.ID, link))

	other := &model.Document{ID: uuid.NewString(), Title: "Other", OwnerID: "u2", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Insert(ctx, other))
	assert.ErrorIs(t, store.AddLink(ctx, other.ID, link), ErrTokenTaken)

	byLink, err := store.FindByLinkToken(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, byLink.ID)

	require.NoError(t, store.PutShare(ctx, doc.ID, model.Share{UserID: "u3", Role: model.RoleViewer}))
	require.NoError(t, store.PutShare(ctx, doc.ID, model.Share{UserID: "u3", Role: model.RoleEditor}))
	got, err = store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Share{{UserID: "u3", Role: model.RoleEditor}}, got.ShareWith)

	require.NoError(t, store.Delete(ctx, doc.ID))
	_, err = store.FindByID(ctx, doc.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
