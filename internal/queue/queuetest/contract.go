// Package queuetest holds the behaviour every queue.Store must share.
package queuetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linnemanlabs/erqueue/internal/queue"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

// RunStoreContract exercises store, which must start empty.
func RunStoreContract(t *testing.T, store queue.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		got, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	var first, second, third queue.Entry
	t.Run("append assigns increasing numbers", func(t *testing.T) {
		var err error
		first, err = store.Append(ctx, triage.LabelMinor)
		require.NoError(t, err)
		second, err = store.Append(ctx, triage.LabelEmergency)
		require.NoError(t, err)
		third, err = store.Append(ctx, triage.LabelDelayed)
		require.NoError(t, err)

		assert.Equal(t, triage.LabelMinor, first.AssignedLabel)
		assert.Equal(t, triage.LabelEmergency, second.AssignedLabel)
		assert.Greater(t, first.Number, 0)
		assert.Greater(t, second.Number, first.Number)
		assert.Greater(t, third.Number, second.Number)
	})

	t.Run("list returns every entry", func(t *testing.T) {
		got, err := store.List(ctx)
		require.NoError(t, err)
		queue.Sort(got)
		assert.Equal(t, []queue.Entry{second, third, first}, got)
	})

	t.Run("remove", func(t *testing.T) {
		ok, err := store.Remove(ctx, second.Number)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Remove(ctx, second.Number)
		require.NoError(t, err)
		assert.False(t, ok, "second remove of the same number")

		ok, err = store.Remove(ctx, 99999)
		require.NoError(t, err)
		assert.False(t, ok, "unknown number")

		got, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("numbers are not reused", func(t *testing.T) {
		_, err := store.Remove(ctx, third.Number)
		require.NoError(t, err)

		next, err := store.Append(ctx, triage.LabelMinor)
		require.NoError(t, err)
		assert.Greater(t, next.Number, third.Number)
	})

	t.Run("concurrent appends get distinct numbers", func(t *testing.T) {
		const n = 20
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seen = make(map[int]struct{}, n)
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e, err := store.Append(ctx, triage.LabelDelayed)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[e.Number] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Len(t, seen, n)
	})
}
