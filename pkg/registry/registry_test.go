package registry

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestJoinAndSubscribersOf(t *testing.T) {
	r := New[string]()

	require.NoError(t, r.Join("x", "build"))
	require.NoError(t, r.Join("y", Wildcard))
	require.NoError(t, r.Join("z", "deploy"))

	assert.Equal(t, []string{"x"}, r.SubscribersOf("build"))
	assert.Equal(t, []string{"y"}, r.SubscribersOf(Wildcard))
	assert.Empty(t, r.SubscribersOf("nobody"))
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"*", "build", "deploy"}, r.AllTopics())
}

func TestJoinIsIdempotent(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Join(1, "a"))
	require.NoError(t, r.Join(1, "a"))

	assert.Equal(t, 1, r.Count("a"))
	assert.Equal(t, []int{1}, r.SubscribersOf("a"))
}

func TestJoinEmptyTopic(t *testing.T) {
	r := New[int]()
	assert.ErrorIs(t, r.Join(1, ""), ErrEmptyTopic)
	assert.Zero(t, r.Len())
}

func TestLeave(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Join(1, "a"))
	require.NoError(t, r.Join(2, "a"))

	assert.True(t, r.Leave(1, "a"))
	assert.False(t, r.Leave(1, "a"), "second leave is a no-op")
	assert.False(t, r.Leave(3, "never"))
	assert.Equal(t, []int{2}, r.SubscribersOf("a"))

	assert.True(t, r.Leave(2, "a"))
	assert.Zero(t, r.Len(), "empty topics are deleted")
}

func TestDropAllRemovesEverywhere(t *testing.T) {
	r := New[string]()
	for _, topic := range []string{"build", Wildcard, "deploy"} {
		require.NoError(t, r.Join("x", topic))
	}
	require.NoError(t, r.Join("y", "build"))

	left := r.DropAll("x")
	assert.Equal(t, []string{"*", "build", "deploy"}, left)

	for _, topic := range []string{"build", Wildcard, "deploy"} {
		assert.NotContains(t, r.SubscribersOf(topic), "x")
		assert.False(t, r.IsMember("x", topic))
	}
	assert.Equal(t, []string{"y"}, r.SubscribersOf("build"))
	assert.Nil(t, r.Topics("x"))
	assert.Nil(t, r.DropAll("x"), "dropping twice leaves nothing")
}

func TestTopics(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Join(1, "b"))
	require.NoError(t, r.Join(1, "a"))
	assert.Equal(t, []string{"a", "b"}, r.Topics(1))
	assert.True(t, r.IsMember(1, "a"))
	assert.False(t, r.IsMember(2, "a"))
}

func TestMaxTopicsPerMember(t *testing.T) {
	r := NewWithConfig[int](Config{MaxTopicsPerMember: 2})
	require.NoError(t, r.Join(1, "a"))
	require.NoError(t, r.Join(1, "b"))
	require.NoError(t, r.Join(1, "b"), "rejoining does not count against the limit")
	assert.ErrorIs(t, r.Join(1, "c"), ErrResourceExhausted)
	require.NoError(t, r.Join(2, "c"))

	r.Leave(1, "a")
	require.NoError(t, r.Join(1, "c"))
}

func TestSnapshotIsIndependent(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Join(1, "a"))

	snap := r.SubscribersOf("a")
	r.DropAll(1)
	assert.Equal(t, []int{1}, snap)
	assert.Empty(t, r.SubscribersOf("a"))
}

func TestConcurrentMutations(t *testing.T) {
	r := New[int]()
	const members = 50

	var wg sync.WaitGroup
	for m := 0; m < members; m++ {
		wg.Add(1)
		go func(m int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				topic := fmt.Sprintf("t%d", i%5)
				_ = r.Join(m, topic)
				_ = r.SubscribersOf(topic)
				if i%3 == 0 {
					r.Leave(m, topic)
				}
			}
			r.DropAll(m)
		}(m)
	}
	wg.Wait()

	assert.Zero(t, r.Len())
	assert.Empty(t, sorted(r.AllTopics()))
}
