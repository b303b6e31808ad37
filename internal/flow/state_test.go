package flow

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestUpdateCreatesAndGetReturnsCopy(t *testing.T) {
	s := NewStateStore()
	_, ok := s.Get("+1")
	assert.False(t, ok)

	st, err := s.Update("+1", func(st *ConversationState) error {
		st.SetMarker(MarkerAwaitingETA, map[string]string{DataKeyCaseID: "HR-0001"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "+1", st.Phone)

	got, ok := s.Get("+1")
	require.True(t, ok)
	got.Data[DataKeyCaseID] = "mutated"

	again, _ := s.Get("+1")
	assert.Equal(t, "HR-0001", again.Data[DataKeyCaseID])
}

func TestUpdateErrorLeavesStateUnchanged(t *testing.T) {
	s := NewStateStore()
	require.NoError(t, s.AwaitETA("+1", "HR-0001"))

	boom := errors.New("boom")
	_, err := s.Update("+1", func(st *ConversationState) error {
		st.SetMarker(MarkerNone, nil)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	st, ok := s.Get("+1")
	require.True(t, ok)
	assert.Equal(t, MarkerAwaitingETA, st.Marker)
}

func TestExpiredStateIsDiscardedLazily(t *testing.T) {
	clock := newFakeClock()
	s := NewStateStore(WithConversationTimeout(30*time.Minute), WithStateClock(clock.Now))
	require.NoError(t, s.AwaitETA("+1", "HR-0001"))

	clock.Advance(29 * time.Minute)
	_, ok := s.Get("+1")
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = s.Get("+1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	st, err := s.Update("+1", func(st *ConversationState) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, MarkerNone, st.Marker)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	s := NewStateStore(WithConversationTimeout(10*time.Minute), WithStateClock(clock.Now))
	require.NoError(t, s.AwaitETA("+old", "HR-0001"))
	clock.Advance(8 * time.Minute)
	require.NoError(t, s.AwaitETA("+new", "HR-0002"))
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("+new")
	assert.True(t, ok)
}

func TestHistoryIsBounded(t *testing.T) {
	var st ConversationState
	for i := 0; i < MaxHistoryMessages+5; i++ {
		st.AppendHistory("user", fmt.Sprintf("m%d", i), time.Time{})
	}
	require.Len(t, st.History, MaxHistoryMessages)
	assert.Equal(t, "m5", st.History[0].Content)
}

func TestSamePhoneLosesNoUpdate(t *testing.T) {
	s := NewStateStore()
	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update("+1", func(st *ConversationState) error {
				st.Turns++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, ok := s.Get("+1")
	require.True(t, ok)
	assert.Equal(t, n, st.Turns)
}

func TestDifferentPhonesNeverBlockEachOther(t *testing.T) {
	s := NewStateStore()
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = s.Update("+blocked", func(st *ConversationState) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	defer close(release)

	done := make(chan struct{})
	go func() {
		_, _ = s.Update("+free", func(st *ConversationState) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("update for a different phone was blocked")
	}
}

func TestETAsForCase(t *testing.T) {
	s := NewStateStore()
	require.NoError(t, s.AwaitETA("+a", "HR-0001"))
	require.NoError(t, s.AwaitETA("+b", "HR-0001"))
	require.NoError(t, s.AwaitETA("+c", "HR-0002"))
	_, err := s.Update("+a", func(st *ConversationState) error {
		st.Data[DataKeyETAMinutes] = "15"
		return nil
	})
	require.NoError(t, err)
	_, err = s.Update("+c", func(st *ConversationState) error {
		st.Data[DataKeyETAMinutes] = "5"
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"+a": 15}, s.ETAsForCase("HR-0001"))
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.Len())
	unlockA()
	unlockB()
	assert.Equal(t, 0, k.Len())
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	unlock := k.Lock("a")

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second Lock never acquired")
	}
}
