package entity

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/errors"
	meridiantest "github.com/meridianhq/meridian/internal/testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(meridiantest.CreateTestDB(t), nil)
}

func TestCreateAndGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Entity{ID: "acct_1", Type: TypeAccount, Name: "Acme"}))
	require.NoError(t, store.Create(ctx, &Entity{ID: "proj_1", Type: TypeProject, Name: "Rollout", ParentID: "acct_1"}))

	got, err := store.Get(ctx, "proj_1")
	require.NoError(t, err)
	assert.Equal(t, TypeProject, got.Type)
	assert.Equal(t, "acct_1", got.ParentID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateRejectsInvalidType(t *testing.T) {
	store := newStore(t)

	err := store.Create(context.Background(), &Entity{ID: "x", Type: Type("galaxy"), Name: "No"})
	require.Error(t, err)
}

func TestCreateRejectsUnknownParent(t *testing.T) {
	store := newStore(t)

	err := store.Create(context.Background(), &Entity{
		ID: "proj_1", Type: TypeProject, Name: "Orphan", ParentID: "acct_missing",
	})
	assert.True(t, errors.IsUnknownEntity(err))
}

func TestCreateRejectsDepthOverLimit(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Entity{ID: "e0", Type: TypeAccount, Name: "root"}))
	parent := "e0"
	for i := 1; i < MaxHierarchyDepth; i++ {
		id := fmt.Sprintf("e%d", i)
		require.NoError(t, store.Create(ctx, &Entity{ID: id, Type: TypeProject, Name: id, ParentID: parent}))
		parent = id
	}

	err := store.Create(ctx, &Entity{ID: "too_deep", Type: TypePerson, Name: "deep", ParentID: parent})
	require.Error(t, err)
}

func TestParentAndChildren(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Entity{ID: "acct_1", Type: TypeAccount, Name: "Acme"}))
	require.NoError(t, store.Create(ctx, &Entity{ID: "proj_1", Type: TypeProject, Name: "A", ParentID: "acct_1"}))
	require.NoError(t, store.Create(ctx, &Entity{ID: "proj_2", Type: TypeProject, Name: "B", ParentID: "acct_1"}))

	parent, err := store.Parent(ctx, "proj_1")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", parent)

	// Roots have no parent, which is not an error
	parent, err = store.Parent(ctx, "acct_1")
	require.NoError(t, err)
	assert.Empty(t, parent)

	_, err = store.Parent(ctx, "acct_missing")
	assert.True(t, errors.IsUnknownEntity(err))

	children, err := store.Children(ctx, "acct_1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"proj_1", "proj_2"}, children)
}

func TestDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Entity{ID: "acct_1", Type: TypeAccount, Name: "Acme"}))
	require.NoError(t, store.Delete(ctx, "acct_1"))

	_, err := store.Get(ctx, "acct_1")
	assert.True(t, errors.IsUnknownEntity(err))

	err = store.Delete(ctx, "acct_1")
	assert.True(t, errors.IsUnknownEntity(err))
}
