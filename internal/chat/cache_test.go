package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_AppendEvictsOldest(t *testing.T) {
	tests := []struct {
		name     string
		appended int
		wantLen  int
		wantHead string
		wantTail string
	}{
		{name: "empty", appended: 0, wantLen: 0},
		{name: "below bound", appended: 3, wantLen: 3, wantHead: "m1", wantTail: "m3"},
		{name: "exactly bound", appended: 50, wantLen: 50, wantHead: "m1", wantTail: "m50"},
		{name: "one over bound", appended: 51, wantLen: 50, wantHead: "m2", wantTail: "m51"},
		{name: "sixty", appended: 60, wantLen: 50, wantHead: "m11", wantTail: "m60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache(MaxCacheSize)
			for i := 1; i <= tt.appended; i++ {
				c.Append("r", msg(i))
			}

			snap := c.Snapshot("r")
			require.Len(t, snap, tt.wantLen)
			assert.Equal(t, tt.wantLen, c.Len("r"))
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantHead, snap[0].Content)
				assert.Equal(t, tt.wantTail, snap[len(snap)-1].Content)
			}
		})
	}
}

func TestCache_FiftyOneKeepsLastFifty(t *testing.T) {
	c := NewCache(0)
	want := make([]string, 0, 50)
	for i := 1; i <= 51; i++ {
		c.Append("42", msg(i))
		if i >= 2 {
			want = append(want, fmt.Sprintf("m%d", i))
		}
	}
	assert.Equal(t, want, contents(c.Snapshot("42")))
}

func TestCache_SnapshotIsACopy(t *testing.T) {
	c := NewCache(5)
	c.Append("r", msg(1))

	snap := c.Snapshot("r")
	snap[0].Content = "changed"

	assert.Equal(t, "m1", c.Snapshot("r")[0].Content)
}

func TestCache_UnknownRoomIsEmpty(t *testing.T) {
	c := NewCache(5)
	snap := c.Snapshot("nope")
	require.NotNil(t, snap)
	assert.Empty(t, snap)
	assert.Equal(t, 0, c.Rooms())
}

func TestCache_RoomsAreIndependent(t *testing.T) {
	c := NewCache(2)
	c.Append("a", msg(1))
	c.Append("b", msg(2))
	c.Append("a", msg(3))
	c.Append("a", msg(4))

	assert.Equal(t, []string{"m3", "m4"}, contents(c.Snapshot("a")))
	assert.Equal(t, []string{"m2"}, contents(c.Snapshot("b")))
}

func TestCache_Prime(t *testing.T) {
	c := NewCache(4)

	// published before the cold-start load finished
	c.Append("r", msg(3))
	c.Append("r", msg(4))

	ok := c.Prime("r", []Message{msg(1), msg(2), msg(3)})
	require.True(t, ok)
	assert.True(t, c.Primed("r"))
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, contents(c.Snapshot("r")))

	assert.False(t, c.Prime("r", []Message{msg(9)}), "second prime is ignored")
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, contents(c.Snapshot("r")))
}

func TestCache_PrimeTrimsToBound(t *testing.T) {
	c := NewCache(3)
	c.Append("r", msg(10))
	c.Prime("r", []Message{msg(1), msg(2), msg(3), msg(4)})

	assert.Equal(t, []string{"m3", "m4", "m10"}, contents(c.Snapshot("r")))
}

func TestCache_Sweep(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewCache(5)
	c.now = func() time.Time { return now }

	c.Append("old", msg(1))
	now = now.Add(10 * time.Minute)
	c.Append("fresh", msg(2))

	assert.Equal(t, 0, c.Sweep(0), "zero idle disables sweeping")
	assert.Equal(t, 1, c.Sweep(5*time.Minute))
	assert.Equal(t, 1, c.Rooms())
	assert.Empty(t, c.Snapshot("old"))
	assert.False(t, c.Primed("old"))
	assert.Len(t, c.Snapshot("fresh"), 1)
}

func TestCache_ConcurrentAppendsStayBounded(t *testing.T) {
	c := NewCache(MaxCacheSize)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Append("r", msg(w*1000+i))
				assert.LessOrEqual(t, len(c.Snapshot("r")), MaxCacheSize)
			}
		}(w)
	}
	wg.Wait()
	assert.Len(t, c.Snapshot("r"), MaxCacheSize)
}

func TestCache_SizeCappedAtMax(t *testing.T) {
	for _, size := range []int{-1, 0, MaxCacheSize + 1, 100} {
		c := NewCache(size)
		assert.Equal(t, MaxCacheSize, c.Size(), "size %d", size)
		for i := 1; i <= 60; i++ {
			c.Append("r", msg(i))
		}
		assert.Len(t, c.Snapshot("r"), MaxCacheSize)
	}
	assert.Equal(t, 10, NewCache(10).Size())
}
