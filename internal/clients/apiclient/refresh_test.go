package apiclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefreshState_SingleLeader(t *testing.T) {
	t.Parallel()

	var s refreshState
	current := func() string { return "old" }

	first := s.beginRefresh("old", current)
	require.Equal(t, roleLeader, first.role)

	w1 := s.beginRefresh("old", current)
	w2 := s.beginRefresh("old", current)
	require.Equal(t, roleWaiter, w1.role)
	require.Equal(t, roleWaiter, w2.role)
	require.Equal(t, 2, s.pending())

	require.Equal(t, 2, s.settle(refreshOutcome{token: "new"}))
	require.Equal(t, "new", (<-w1.wait).token)
	require.Equal(t, "new", (<-w2.wait).token)
	require.Zero(t, s.pending())

	// Флаг сброшен: следующий 401 снова становится лидером.
	require.Equal(t, roleLeader, s.beginRefresh("old", current).role)
}

func TestRefreshState_SettleTwiceIsNoop(t *testing.T) {
	t.Parallel()

	var s refreshState
	current := func() string { return "" }

	require.Equal(t, roleLeader, s.beginRefresh("", current).role)
	w := s.beginRefresh("", current)

	boom := errors.New("401")
	require.Equal(t, 1, s.settle(refreshOutcome{err: boom}))
	require.Zero(t, s.settle(refreshOutcome{token: "late"}))

	out := <-w.wait
	require.ErrorIs(t, out.err, boom)
	require.Empty(t, out.token)
}

func TestRefreshState_ReplayWhenTokenAlreadyRotated(t *testing.T) {
	t.Parallel()

	var s refreshState

	tk := s.beginRefresh("old", func() string { return "rotated" })
	require.Equal(t, roleReplay, tk.role)
	require.Equal(t, "rotated", tk.token)

	// Во время активного обновления ротация не проверяется: запрос ждёт итога.
	require.Equal(t, roleLeader, s.beginRefresh("rotated", func() string { return "rotated" }).role)
	require.Equal(t, roleWaiter, s.beginRefresh("old", func() string { return "rotated" }).role)
}

func TestRefreshState_FIFORelease(t *testing.T) {
	t.Parallel()

	var s refreshState
	current := func() string { return "" }
	require.Equal(t, roleLeader, s.beginRefresh("", current).role)

	const n = 5
	waits := make([]<-chan refreshOutcome, n)
	for i := range n {
		waits[i] = s.beginRefresh("", current).wait
	}

	s.mu.Lock()
	for i, ch := range s.waiters {
		require.Equal(t, waits[i], (<-chan refreshOutcome)(ch))
	}
	s.mu.Unlock()

	s.settle(refreshOutcome{token: "t"})
	for _, w := range waits {
		require.Equal(t, "t", (<-w).token)
	}
}

func TestRequest_WithRetriedIsCopy(t *testing.T) {
	t.Parallel()

	r := Request{Method: "GET", Path: "/auth/me"}
	rr := r.WithRetried()

	require.False(t, r.Retried)
	require.True(t, rr.Retried)
	require.Equal(t, r.Path, rr.Path)
}
