package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConverter simulates conversions and records what ran, in which order,
// and how many ran at once.
type fakeConverter struct {
	delay   time.Duration
	failOn  map[string]string // input path -> error message
	panicOn string

	mu         sync.Mutex
	order      []string
	running    int
	maxRunning int
}

func (f *fakeConverter) Convert(ctx context.Context, inputPath, outputPath string, options map[string]string) (map[string]string, error) {
	f.mu.Lock()
	f.order = append(f.order, inputPath)
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if inputPath == f.panicOn {
		panic("converter blew up on " + inputPath)
	}
	if msg, ok := f.failOn[inputPath]; ok {
		return nil, errors.New(msg)
	}
	return map[string]string{"input": inputPath}, nil
}

func testOptions() Options {
	return Options{MaxWorkers: 4, PollInterval: 10 * time.Millisecond}
}

func waitDrain(t *testing.T, b *Batch) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for b.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("batch did not drain in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBatchDrainConservation(t *testing.T) {
	fake := &fakeConverter{delay: 5 * time.Millisecond}
	b := NewBatch(fake, testOptions())

	const n = 20
	for i := 0; i < n; i++ {
		b.AddTask(fmt.Sprintf("in-%02d", i), fmt.Sprintf("out-%02d", i), nil)
	}

	var calls int
	require.True(t, b.Start(func(done, total int, info ProgressInfo) {
		calls++
		assert.Equal(t, n, total)
		assert.LessOrEqual(t, len(info.Processing), 4)
	}))
	waitDrain(t, b)

	res := b.GetResults()
	assert.Equal(t, n, res.Total)
	assert.Equal(t, n, res.Completed)
	assert.Zero(t, res.Failed)
	assert.Zero(t, res.Cancelled)

	snap := b.Snapshot()
	assert.Empty(t, snap.Pending)
	assert.Empty(t, snap.Processing)
	assert.Equal(t, 100, snap.Percentage)

	assert.LessOrEqual(t, fake.maxRunning, 4, "worker bound exceeded")
	assert.GreaterOrEqual(t, calls, 1, "final callback must fire")
}

func TestBatchFIFOClaimOrder(t *testing.T) {
	fake := &fakeConverter{}
	b := NewBatch(fake, Options{MaxWorkers: 1, PollInterval: 5 * time.Millisecond})

	want := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		in := fmt.Sprintf("in-%d", i)
		want = append(want, in)
		b.AddTask(in, "out", nil)
	}

	require.True(t, b.Start(nil))
	waitDrain(t, b)

	assert.Equal(t, want, fake.order)
}

func TestBatchStartRefusals(t *testing.T) {
	b := NewBatch(&fakeConverter{}, testOptions())

	assert.False(t, b.Start(nil), "no pending tasks")

	b.AddTask("in", "out", nil)
	slow := &fakeConverter{delay: 100 * time.Millisecond}
	b = NewBatch(slow, testOptions())
	b.AddTask("in", "out", nil)
	require.True(t, b.Start(nil))
	assert.False(t, b.Start(nil), "already running")
	waitDrain(t, b)

	// Everything terminal: a new Start has nothing to claim.
	assert.False(t, b.Start(nil))
}

func TestBatchCancellation(t *testing.T) {
	fake := &fakeConverter{delay: 200 * time.Millisecond}
	b := NewBatch(fake, Options{MaxWorkers: 2, PollInterval: 20 * time.Millisecond})

	for i := 0; i < 10; i++ {
		b.AddTask(fmt.Sprintf("in-%d", i), "out", nil)
	}

	require.True(t, b.Start(nil))
	time.Sleep(50 * time.Millisecond)
	b.Cancel()
	b.Cancel() // repeat is harmless
	waitDrain(t, b)

	res := b.GetResults()
	assert.Equal(t, 10, res.Total)
	assert.Equal(t, 2, res.Completed, "already-claimed tasks finish naturally")
	assert.Equal(t, 8, res.Cancelled, "pending tasks never run after cancel")
	assert.Zero(t, res.Failed)

	snap := b.Snapshot()
	assert.Empty(t, snap.Pending)
	assert.Empty(t, snap.Processing)
}

func TestBatchCancelWhenIdleIsNoop(t *testing.T) {
	b := NewBatch(&fakeConverter{}, testOptions())
	b.Cancel()
	b.AddTask("in", "out", nil)
	require.True(t, b.Start(nil))
	waitDrain(t, b)
	assert.Equal(t, 1, b.GetResults().Completed)
}

func TestBatchIsolatedFailure(t *testing.T) {
	fake := &fakeConverter{failOn: map[string]string{"in-3": "bad format"}}
	b := NewBatch(fake, testOptions())

	for i := 1; i <= 5; i++ {
		b.AddTask(fmt.Sprintf("in-%d", i), "out", nil)
	}

	require.True(t, b.Start(nil))
	waitDrain(t, b)

	res := b.GetResults()
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 4, res.Completed)
	assert.Equal(t, 1, res.Failed)

	snap := b.Snapshot()
	require.Len(t, snap.Failed, 1)
	assert.Equal(t, "in-3", snap.Failed[0].InputPath)
	assert.Equal(t, "bad format", snap.Failed[0].Error)
}

func TestBatchPanicCaptured(t *testing.T) {
	fake := &fakeConverter{panicOn: "in-1"}
	b := NewBatch(fake, testOptions())

	b.AddTask("in-0", "out", nil)
	b.AddTask("in-1", "out", nil)

	require.True(t, b.Start(nil))
	waitDrain(t, b)

	res := b.GetResults()
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Failed)

	snap := b.Snapshot()
	require.Len(t, snap.Failed, 1)
	assert.Contains(t, snap.Failed[0].Error, "panic:")
}

func TestBatchResetMidRun(t *testing.T) {
	fake := &fakeConverter{delay: 100 * time.Millisecond}
	b := NewBatch(fake, Options{MaxWorkers: 2, PollInterval: 10 * time.Millisecond})

	for i := 0; i < 6; i++ {
		b.AddTask(fmt.Sprintf("in-%d", i), "out", nil)
	}
	require.True(t, b.Start(nil))
	time.Sleep(30 * time.Millisecond)

	b.Reset()

	assert.False(t, b.IsRunning())
	assert.Zero(t, b.GetResults().Total)
	assert.Zero(t, b.Snapshot().Total)
}

func TestBatchAddTaskDuringRun(t *testing.T) {
	fake := &fakeConverter{delay: 30 * time.Millisecond}
	b := NewBatch(fake, Options{MaxWorkers: 1, PollInterval: 5 * time.Millisecond})

	b.AddTask("in-0", "out", nil)
	require.True(t, b.Start(nil))
	b.AddTask("in-1", "out", nil)
	waitDrain(t, b)

	res := b.GetResults()
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Completed)
}

func TestBatchFinalCallbackAfterDrain(t *testing.T) {
	fake := &fakeConverter{delay: 10 * time.Millisecond}
	b := NewBatch(fake, Options{MaxWorkers: 2, PollInterval: 5 * time.Millisecond})
	for i := 0; i < 3; i++ {
		b.AddTask(fmt.Sprintf("in-%d", i), "out", nil)
	}

	var mu sync.Mutex
	var last ProgressInfo
	var lastDone, lastTotal int
	require.True(t, b.Start(func(done, total int, info ProgressInfo) {
		mu.Lock()
		last, lastDone, lastTotal = info, done, total
		mu.Unlock()
	}))
	waitDrain(t, b)
	time.Sleep(20 * time.Millisecond) // let the final callback land

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, lastDone)
	assert.Equal(t, 3, lastTotal)
	assert.Equal(t, 100, last.Percentage)
}

func TestAddFolderTask(t *testing.T) {
	expand := func(inputFolder, outputFolder, outputFormat string, recursive bool) ([]FilePair, error) {
		if inputFolder == "/missing" {
			return nil, nil
		}
		return []FilePair{
			{Input: inputFolder + "/a.png", Output: outputFolder + "/a.jpg"},
			{Input: inputFolder + "/b.png", Output: outputFolder + "/b.jpg"},
		}, nil
	}
	b := NewBatch(&fakeConverter{}, Options{MaxWorkers: 1, PollInterval: 5 * time.Millisecond, Expand: expand})

	assert.Zero(t, b.AddFolderTask("/missing", "/out", "jpeg", true, nil))
	assert.Equal(t, 2, b.AddFolderTask("/photos", "/out", "jpeg", true, nil))
	assert.Equal(t, 2, b.Snapshot().Total)
}

type busyGuard struct{ busy atomic.Bool }

func (g *busyGuard) Check() error {
	if g.busy.Load() {
		return errors.New("host loaded")
	}
	return nil
}

func TestBatchGuardDefersClaims(t *testing.T) {
	guard := &busyGuard{}
	guard.busy.Store(true)
	b := NewBatch(&fakeConverter{}, Options{MaxWorkers: 2, PollInterval: 5 * time.Millisecond, Guard: guard})
	b.AddTask("in", "out", nil)

	require.True(t, b.Start(nil))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, len(b.Snapshot().Pending), "nothing claimed while guarded")

	guard.busy.Store(false)
	waitDrain(t, b)
	assert.Equal(t, 1, b.GetResults().Completed)
}
