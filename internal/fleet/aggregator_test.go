package fleet

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

func TestSet_Names(t *testing.T) {
	tests := []struct {
		set   Set
		count string
		list  string
	}{
		{Running, "RunningDevices", "RunningDevicesList"},
		{Fault, "FaultDevices", "FaultDevicesList"},
		{Hang, "HangDevices", "HangDevicesList"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.count, tt.set.CountAttribute())
		assert.Equal(t, tt.list, tt.set.ListAttribute())
	}
	assert.Equal(t, "Set(7)", Set(7).String())
}

func TestAggregator_AppendRemove(t *testing.T) {
	pub := &recordingPublisher{}
	agg := New(pub, nil)

	assert.True(t, agg.AppendTo(Running, "a"))
	assert.True(t, agg.AppendTo(Running, "b"))
	assert.False(t, agg.AppendTo(Running, "a"), "duplicate add must not change the set")
	assert.Equal(t, []string{"a", "b"}, agg.Members(Running))

	count, ok := pub.last("RunningDevices")
	require.True(t, ok)
	assert.Equal(t, 2, count.Value)
	list, ok := pub.last("RunningDevicesList")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, list.Value)

	assert.True(t, agg.RemoveFrom(Running, "a"))
	assert.False(t, agg.RemoveFrom(Running, "a"), "missing remove must not change the set")
	assert.Equal(t, []string{"b"}, agg.Members(Running))
	assert.False(t, agg.Contains(Running, "a"))
}

func TestAggregator_EmptyListPublishedAsEmptySlice(t *testing.T) {
	pub := &recordingPublisher{}
	agg := New(pub, nil)

	agg.AppendTo(Hang, "a")
	agg.RemoveFrom(Hang, "a")

	list, ok := pub.last("HangDevicesList")
	require.True(t, ok)
	assert.Equal(t, []string{}, list.Value)
}

func TestAggregator_AppendMovesBetweenSets(t *testing.T) {
	pub := &recordingPublisher{}
	agg := New(pub, nil)

	agg.AppendTo(Running, "a")
	agg.AppendTo(Fault, "a")

	assert.False(t, agg.Contains(Running, "a"))
	assert.True(t, agg.Contains(Fault, "a"))

	count, ok := pub.last("RunningDevices")
	require.True(t, ok)
	assert.Equal(t, 0, count.Value)

	agg.AppendTo(Hang, "a")
	r, f, h := agg.Counts()
	assert.Equal(t, [3]int{0, 0, 1}, [3]int{r, f, h})
}

func TestAggregator_MutualExclusionUnderConcurrency(t *testing.T) {
	agg := New(nil, nil)
	devices := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(uint64(w), 42))
			for range 500 {
				name := devices[rng.IntN(len(devices))]
				set := Sets[rng.IntN(len(Sets))]
				if rng.IntN(2) == 0 {
					agg.AppendTo(set, name)
				} else {
					agg.RemoveFrom(set, name)
				}
			}
		})
	}
	wg.Wait()

	snap := agg.Snapshot()
	seen := map[string]int{}
	for _, list := range [][]string{snap.Running, snap.Fault, snap.Hang} {
		for _, name := range list {
			seen[name]++
		}
	}
	for name, n := range seen {
		assert.Equal(t, 1, n, "device %s is in %d sets", name, n)
	}
}

func TestAggregator_ChangesLogAndAlerts(t *testing.T) {
	notifier := &recordingNotifier{}
	agg := New(nil, notifier)
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return fixed }

	agg.AppendTo(Running, "a")
	agg.AppendTo(Fault, "b")
	agg.AppendTo(Fault, "c")

	entries := agg.Changes().Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "2026-10-17 12:00:00", entries[0].Stamp)
	assert.Equal(t, "2026-10-17 12:00:00", entries[1].Stamp)
	assert.Equal(t, "2026-10-17 12:00:00#2", entries[2].Stamp)
	assert.Equal(t, "FaultDevices 2026-10-17 12:00:00#2", entries[2].Key())
	assert.Equal(t, 2, entries[2].Count)
	assert.Equal(t, []string{"b", "c"}, entries[2].Members)

	// Running changes are digested only; fault changes alert immediately.
	sent := notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, "Fault list changed", sent[0].subject)
	assert.Contains(t, sent[1].body, "c appended to the Fault list.")
	assert.Contains(t, sent[1].body, "FaultDevicesList (2): b, c")
}

func TestAggregator_OnChange(t *testing.T) {
	agg := New(nil, nil)

	var got []string
	agg.OnChange(func(set Set, members []string) {
		got = append(got, fmt.Sprintf("%s=%v", set, members))
	})
	agg.OnChange(func(Set, []string) {
		panic("listener bug")
	})

	agg.AppendTo(Running, "a")
	agg.AppendTo(Hang, "a")

	assert.Equal(t, []string{
		"Running=[a]",
		"Running=[]",
		"Hang=[a]",
	}, got)
}

func TestAggregator_Snapshot(t *testing.T) {
	agg := New(nil, nil)
	agg.AppendTo(Running, "a")
	agg.AppendTo(Hang, "b")

	snap := agg.Snapshot()
	assert.Equal(t, []string{"a"}, snap.Running)
	assert.Empty(t, snap.Fault)
	assert.Equal(t, []string{"b"}, snap.Hang)
	assert.Equal(t, 2, snap.PendingChanges)
}

// gatedPublisher blocks the first publication of gateName until released.
type gatedPublisher struct {
	recordingPublisher
	gateName string
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (p *gatedPublisher) PublishChange(c device.Change) error {
	if c.Name == p.gateName {
		p.once.Do(func() {
			close(p.entered)
			<-p.release
		})
	}
	return p.recordingPublisher.PublishChange(c)
}

func TestAggregator_ConcurrentAppendsPublishNewestList(t *testing.T) {
	pub := &gatedPublisher{
		gateName: "RunningDevices",
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	agg := New(pub, nil)

	first := make(chan struct{})
	go func() {
		defer close(first)
		agg.AppendTo(Running, "a")
	}()
	<-pub.entered

	second := make(chan struct{})
	go func() {
		defer close(second)
		agg.AppendTo(Running, "b")
	}()
	require.Eventually(t, func() bool {
		return len(agg.Members(Running)) == 2
	}, time.Second, time.Millisecond)

	close(pub.release)
	<-first
	<-second

	count, ok := pub.last("RunningDevices")
	require.True(t, ok)
	assert.Equal(t, 2, count.Value)
	list, ok := pub.last("RunningDevicesList")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, list.Value)
}

func TestAggregator_StaleSnapshotNotPublished(t *testing.T) {
	pub := &recordingPublisher{}
	agg := New(pub, nil)

	agg.emit([]setChange{{set: Fault, members: []string{"a", "b"}, seq: 2}}, nil)
	agg.emit([]setChange{{set: Fault, members: []string{"a"}, seq: 1}}, nil)

	list, ok := pub.last("FaultDevicesList")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, list.Value)
	assert.Len(t, pub.changes, 2)
}
