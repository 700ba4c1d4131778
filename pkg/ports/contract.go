package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunProgressStoreContract runs a suite of tests verifying that a
// ProgressStore implementation adheres to the interface contract.
func RunProgressStoreContract(t *testing.T, store ProgressStore) {
	ctx := context.Background()
	key := "contract-test-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState("start")
		state.Answers["start"] = "Option A"
		state.Fields["email"] = "visitor@example.com"

		err := store.Save(ctx, key, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.CurrentStepID, loaded.CurrentStepID)
		assert.Equal(t, state.SessionID, loaded.SessionID)
		assert.Equal(t, "Option A", loaded.Answers["start"])
		assert.Equal(t, "visitor@example.com", loaded.Fields["email"])
		assert.Equal(t, []string{"start"}, loaded.Visited)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Save Isolates Caller State", func(t *testing.T) {
		state := domain.NewState("start")
		require.NoError(t, store.Save(ctx, key, state))

		// Mutations after Save must not leak into the stored copy.
		state.CurrentStepID = "mutated"
		state.Answers["start"] = "mutated"

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "start", loaded.CurrentStepID)
		assert.Empty(t, loaded.Answers["start"])
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, domain.NewState("start")))

		err := store.Clear(ctx, key)
		require.NoError(t, err, "Clear should not return error")

		_, err = store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Clear should return ErrSessionNotFound")

		// Clearing an absent key is not an error.
		assert.NoError(t, store.Clear(ctx, key))
	})
}
