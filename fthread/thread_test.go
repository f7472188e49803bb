package fthread_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wenjin0701/fiber-core/fthread"
)

func TestStartPublishesSelfBeforeReturning(t *testing.T) {
	var self *fthread.Thread
	var selfInsideEntry *fthread.Thread
	th := fthread.Start("worker-0", func(inner *fthread.Thread) {
		selfInsideEntry = inner
		self = fthread.GetThis()
	})
	require.NoError(t, th.Join())
	require.Same(t, th, self)
	require.Same(t, th, selfInsideEntry)
	require.Equal(t, "worker-0", th.Name())
}

func TestThreadIDsAreDistinct(t *testing.T) {
	var mu sync.Mutex
	ids := map[int32]bool{}
	var wg sync.WaitGroup
	threads := make([]*fthread.Thread, 8)
	for i := range threads {
		wg.Add(1)
		i := i
		threads[i] = fthread.Start("t", func(t *fthread.Thread) {
			defer wg.Done()
			mu.Lock()
			ids[t.ID()] = true
			mu.Unlock()
		})
	}
	wg.Wait()
	for _, th := range threads {
		require.NoError(t, th.Join())
	}
	require.Len(t, ids, len(threads))
}

func TestJoinTwiceReturnsErrAlreadyJoined(t *testing.T) {
	th := fthread.Start("once", func(*fthread.Thread) {})
	require.NoError(t, th.Join())
	err := th.Join()
	require.ErrorIs(t, err, fthread.ErrAlreadyJoined)
}

func TestNameTruncation(t *testing.T) {
	long := "this-name-is-way-too-long-for-a-thread"
	th := fthread.Start(long, func(*fthread.Thread) {})
	require.NoError(t, th.Join())
	require.LessOrEqual(t, len(th.Name()), 15)
}

func TestGetThisNilOutsideThread(t *testing.T) {
	require.Nil(t, fthread.GetThis())
}
