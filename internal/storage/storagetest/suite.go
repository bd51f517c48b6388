// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-agent/internal/storage"
)

// Factory builds a fresh, empty store for one subtest. The store's clock
// must come from now.
type Factory func(t *testing.T, now func() time.Time) storage.Store

// FixedClock returns a clock that always reports the same instant.
func FixedClock() func() time.Time {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return at }
}

// SteppingClock returns a clock that advances by one second per call.
func SteppingClock() func() time.Time {
	var (
		mu sync.Mutex
		at = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		at = at.Add(time.Second)
		return at
	}
}

// RunStoreSuite exercises the behaviour every storage.Store must share.
func RunStoreSuite(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("CreateSessionIdempotent", func(t *testing.T) {
		s := newStore(t, SteppingClock())
		require.NoError(t, s.CreateSession(ctx, "s1"))
		require.NoError(t, s.CreateSession(ctx, "s1"))

		sessions, err := s.ListSessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "s1", sessions[0].ID)
	})

	t.Run("DuplicateCreateKeepsOriginalTimestamp", func(t *testing.T) {
		s := newStore(t, SteppingClock())
		require.NoError(t, s.CreateSession(ctx, "s1"))
		first, err := s.ListSessions(ctx)
		require.NoError(t, err)

		require.NoError(t, s.CreateSession(ctx, "s1"))
		second, err := s.ListSessions(ctx)
		require.NoError(t, err)
		assert.True(t, first[0].CreatedAt.Equal(second[0].CreatedAt))
	})

	t.Run("SaveMessageCreatesSession", func(t *testing.T) {
		s := newStore(t, SteppingClock())
		_, err := s.SaveMessage(ctx, "implicit", storage.RoleUser, "hi")
		require.NoError(t, err)

		sessions, err := s.ListSessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "implicit", sessions[0].ID)
	})

	t.Run("HistoryOrderWithIdenticalTimestamps", func(t *testing.T) {
		s := newStore(t, FixedClock())
		for i, text := range []string{"M1", "M2", "M3"} {
			role := storage.RoleUser
			if i%2 == 1 {
				role = storage.RoleAssistant
			}
			_, err := s.SaveMessage(ctx, "s1", role, text)
			require.NoError(t, err)
		}

		history, err := s.History(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "M1", history[0].Text)
		assert.Equal(t, "M2", history[1].Text)
		assert.Equal(t, "M3", history[2].Text)
		assert.Equal(t, storage.RoleAssistant, history[1].Role)
		assert.Less(t, history[0].Seq, history[1].Seq)
		assert.Less(t, history[1].Seq, history[2].Seq)
		assert.True(t, history[0].Timestamp.Equal(history[2].Timestamp))
	})

	t.Run("SequenceIsGlobal", func(t *testing.T) {
		s := newStore(t, FixedClock())
		a, err := s.SaveMessage(ctx, "a", storage.RoleUser, "1")
		require.NoError(t, err)
		b, err := s.SaveMessage(ctx, "b", storage.RoleUser, "2")
		require.NoError(t, err)
		c, err := s.SaveMessage(ctx, "a", storage.RoleAssistant, "3")
		require.NoError(t, err)
		assert.Less(t, a.Seq, b.Seq)
		assert.Less(t, b.Seq, c.Seq)
	})

	t.Run("UnknownSessionIsEmpty", func(t *testing.T) {
		s := newStore(t, SteppingClock())
		history, err := s.History(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.NotNil(t, history)
		assert.Empty(t, history)

		assert.NoError(t, s.ClearSession(ctx, "does-not-exist"))
	})

	t.Run("ClearSessionIdempotent", func(t *testing.T) {
		s := newStore(t, SteppingClock())
		_, err := s.SaveMessage(ctx, "s1", storage.RoleUser, "x")
		require.NoError(t, err)
		_, err = s.SaveMessage(ctx, "s2", storage.RoleUser, "y")
		require.NoError(t, err)

		require.NoError(t, s.ClearSession(ctx, "s1"))
		require.NoError(t, s.ClearSession(ctx, "s1"))

		history, err := s.History(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, history)

		sessions, err := s.ListSessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "s2", sessions[0].ID)

		other, err := s.History(ctx, "s2")
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})

	t.Run("ListSessionsNewestFirst", func(t *testing.T) {
		s := newStore(t, SteppingClock())
		for _, id := range []string{"old", "mid", "new"} {
			require.NoError(t, s.CreateSession(ctx, id))
		}

		sessions, err := s.ListSessions(ctx)
		require.NoError(t, err)
		ids := make([]string, len(sessions))
		for i, sess := range sessions {
			ids[i] = sess.ID
		}
		assert.Equal(t, []string{"new", "mid", "old"}, ids)
	})

	t.Run("ListSessionsSameInstantNewestFirst", func(t *testing.T) {
		s := newStore(t, FixedClock())
		require.NoError(t, s.CreateSession(ctx, "first"))
		require.NoError(t, s.CreateSession(ctx, "second"))

		sessions, err := s.ListSessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "second", sessions[0].ID)
	})

	t.Run("RejectsEmptyIDAndBadRole", func(t *testing.T) {
		s := newStore(t, SteppingClock())
		assert.ErrorIs(t, s.CreateSession(ctx, " "), storage.ErrEmptySessionID)

		_, err := s.SaveMessage(ctx, "", storage.RoleUser, "x")
		assert.ErrorIs(t, err, storage.ErrEmptySessionID)

		_, err = s.SaveMessage(ctx, "s1", storage.Role("system"), "x")
		assert.ErrorIs(t, err, storage.ErrInvalidRole)
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		s := newStore(t, SteppingClock())
		const writers, perWriter = 8, 10

		var wg sync.WaitGroup
		errs := make(chan error, writers*perWriter)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					if _, err := s.SaveMessage(ctx, "shared", storage.RoleUser, fmt.Sprintf("%d-%d", w, i)); err != nil {
						errs <- err
					}
					if _, err := s.SaveMessage(ctx, fmt.Sprintf("own-%d", w), storage.RoleUser, fmt.Sprint(i)); err != nil {
						errs <- err
					}
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		shared, err := s.History(ctx, "shared")
		require.NoError(t, err)
		require.Len(t, shared, writers*perWriter)

		// Each writer's own turns appear in the order it wrote them.
		next := make(map[int]int)
		for _, m := range shared {
			var w, i int
			_, err := fmt.Sscanf(m.Text, "%d-%d", &w, &i)
			require.NoError(t, err)
			assert.Equal(t, next[w], i, "writer %d out of order", w)
			next[w] = i + 1
		}

		for w := 0; w < writers; w++ {
			own, err := s.History(ctx, fmt.Sprintf("own-%d", w))
			require.NoError(t, err)
			assert.Len(t, own, perWriter)
		}
	})
}
