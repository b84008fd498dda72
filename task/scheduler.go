package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Converter runs one conversion job. Implementations must be safe to call
// concurrently with disjoint arguments and may take seconds per call; the
// scheduler never invokes it while holding the registry lock. The returned
// map carries optional diagnostics for logging.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string, options map[string]string) (map[string]string, error)
}

// FilePair is one (input, output) mapping produced by a folder expander.
type FilePair struct {
	Input  string
	Output string
}

// ExpandFunc turns one folder-level request into individual file pairs. A
// missing folder or an empty match set yields a nil slice and no error.
type ExpandFunc func(inputFolder, outputFolder, outputFormat string, recursive bool) ([]FilePair, error)

// Guard lets the scheduler defer claiming new work while the host is under
// pressure. A nil guard never defers.
type Guard interface {
	Check() error
}

// ProgressFunc receives the terminal task count, the total task count and a
// fresh snapshot. It runs inline on the scheduler loop, so it must not block
// for long.
type ProgressFunc func(done, total int, info ProgressInfo)

// Options configures a Batch. Zero values select the defaults.
type Options struct {
	// MaxWorkers bounds concurrently running conversions.
	// Defaults to min(32, NumCPU+4).
	MaxWorkers int
	// PollInterval is the scheduler loop's sleep between dispatch passes.
	// Defaults to 100ms.
	PollInterval time.Duration
	// Expand resolves folder submissions. AddFolderTask adds nothing when nil.
	Expand ExpandFunc
	// Guard, when set, can defer claiming for a tick under host pressure.
	Guard Guard
}

// DefaultMaxWorkers derives the worker bound from hardware concurrency with a
// little headroom, capped at 32.
func DefaultMaxWorkers() int {
	n := runtime.NumCPU() + 4
	if n > 32 {
		n = 32
	}
	return n
}

// Batch schedules conversion jobs over a bounded worker pool. All pending to
// processing claims happen serially from the coordinating loop; workers only
// record results. Construct one explicitly and pass it around — there is no
// package-level instance.
type Batch struct {
	reg        *registry
	conv       Converter
	expand     ExpandFunc
	guard      Guard
	maxWorkers int
	poll       time.Duration

	running atomic.Bool
	cancel  atomic.Bool
	workers sync.WaitGroup

	mu      sync.Mutex
	done    chan struct{}
	baseCtx context.Context
}

func NewBatch(conv Converter, opts Options) *Batch {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return &Batch{
		reg:        newRegistry(),
		conv:       conv,
		expand:     opts.Expand,
		guard:      opts.Guard,
		maxWorkers: opts.MaxWorkers,
		poll:       opts.PollInterval,
		baseCtx:    context.Background(),
	}
}

// SetBaseContext sets the context handed to every conversion call. Intended
// for process startup so a shutdown can reach in-flight conversions.
func (b *Batch) SetBaseContext(ctx context.Context) {
	b.mu.Lock()
	b.baseCtx = ctx
	b.mu.Unlock()
}

func (b *Batch) convCtx() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baseCtx
}

// AddTask queues a single conversion job and returns its id. Always succeeds,
// also while a run is active.
func (b *Batch) AddTask(inputPath, outputPath string, options map[string]string) string {
	id := b.reg.add(inputPath, outputPath, options)
	log.Debug().Str("task_id", id).Str("input", inputPath).Str("output", outputPath).Msg("task added")
	return id
}

// AddFolderTask expands a folder into individual tasks and returns how many
// were added. A missing folder or zero convertible files is an empty batch,
// not an error.
func (b *Batch) AddFolderTask(inputFolder, outputFolder, outputFormat string, recursive bool, options map[string]string) int {
	if b.expand == nil {
		log.Warn().Msg("no folder expander configured")
		return 0
	}
	pairs, err := b.expand(inputFolder, outputFolder, outputFormat, recursive)
	if err != nil {
		log.Warn().Err(err).Str("folder", inputFolder).Msg("folder expansion failed")
		return 0
	}
	for _, p := range pairs {
		b.reg.add(p.Input, p.Output, options)
	}
	log.Info().Int("count", len(pairs)).Str("folder", inputFolder).Msg("folder tasks added")
	return len(pairs)
}

// Start begins the scheduler loop and returns immediately. It refuses — and
// returns false — when a run is already active or no pending tasks exist.
func (b *Batch) Start(cb ProgressFunc) bool {
	if !b.running.CompareAndSwap(false, true) {
		log.Warn().Msg("batch already running")
		return false
	}
	if pending, _ := b.reg.counts(); pending == 0 {
		b.running.Store(false)
		log.Warn().Msg("nothing to convert")
		return false
	}
	b.cancel.Store(false)

	done := make(chan struct{})
	b.mu.Lock()
	b.done = done
	b.mu.Unlock()

	go b.run(cb, done)
	log.Info().Int("max_workers", b.maxWorkers).Msg("batch started")
	return true
}

// run is the coordinating loop: claim up to capacity, dispatch, report,
// sleep. It is the only goroutine that moves tasks out of the pending list,
// so no two claims can ever race over the same capacity budget.
func (b *Batch) run(cb ProgressFunc, done chan struct{}) {
	defer close(done)
	defer b.running.Store(false)

	for {
		pending, processing := b.reg.counts()
		if pending == 0 && processing == 0 {
			break
		}

		if b.cancel.Load() {
			if n := b.reg.cancelPending(time.Now()); n > 0 {
				log.Info().Int("cancelled", n).Msg("pending tasks cancelled")
			}
		} else if pending > 0 && b.claimAllowed() {
			for _, t := range b.reg.claim(b.maxWorkers, time.Now()) {
				b.workers.Add(1)
				go b.process(t)
			}
		}

		if cb != nil {
			terminal, total := b.reg.terminalCount()
			cb(terminal, total, b.reg.snapshot())
		}
		time.Sleep(b.poll)
	}

	b.workers.Wait()
	if cb != nil {
		terminal, total := b.reg.terminalCount()
		cb(terminal, total, b.reg.snapshot())
	}

	res := b.reg.results()
	log.Info().
		Int("total", res.Total).
		Int("completed", res.Completed).
		Int("failed", res.Failed).
		Int("cancelled", res.Cancelled).
		Msg("batch drained")
}

func (b *Batch) claimAllowed() bool {
	if b.guard == nil {
		return true
	}
	if err := b.guard.Check(); err != nil {
		log.Debug().Err(err).Msg("claims deferred")
		return false
	}
	return true
}

// process runs one claimed task to its terminal state. The conversion happens
// outside any lock; panics are captured as failures and never escape the
// worker.
func (b *Batch) process(t *Task) {
	defer b.workers.Done()

	errMsg := b.invoke(t)
	b.reg.finish(t.ID, errMsg, time.Now())
	if errMsg != "" {
		log.Error().Str("task_id", t.ID).Str("input", t.InputPath).Str("error", errMsg).Msg("conversion failed")
	}
}

func (b *Batch) invoke(t *Task) (errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			errMsg = fmt.Sprintf("panic: %v", r)
		}
	}()

	if dir := filepath.Dir(t.OutputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Sprintf("create output dir: %v", err)
		}
	}

	diag, err := b.conv.Convert(b.convCtx(), t.InputPath, t.OutputPath, t.Options)
	if err != nil {
		return err.Error()
	}
	if len(diag) > 0 {
		log.Debug().Str("task_id", t.ID).Fields(map[string]interface{}{"diagnostics": diag}).Msg("conversion done")
	}
	return ""
}

// Cancel requests a cooperative stop: no pending task will be claimed after
// the flag is observed, and every still-pending task is relabelled cancelled.
// In-flight conversions run to their natural outcome. No-op when idle; safe
// to call repeatedly.
func (b *Batch) Cancel() {
	if !b.running.Load() {
		return
	}
	b.cancel.Store(true)
	log.Info().Msg("batch cancellation requested")
}

// Reset cancels an active run, waits for it to drain, then clears the whole
// registry.
func (b *Batch) Reset() {
	if b.running.Load() {
		b.cancel.Store(true)
		b.mu.Lock()
		done := b.done
		b.mu.Unlock()
		if done != nil {
			<-done
		}
	}
	b.reg.reset()
	log.Info().Msg("batch reset")
}

// IsRunning reports whether a run is active.
func (b *Batch) IsRunning() bool {
	return b.running.Load()
}

// Snapshot returns a fresh progress aggregation, independent of callback
// delivery.
func (b *Batch) Snapshot() ProgressInfo {
	return b.reg.snapshot()
}

// GetResults returns the terminal-state summary. Meaningful once IsRunning
// reports false.
func (b *Batch) GetResults() Results {
	return b.reg.results()
}

// Get returns a copy of one task by id.
func (b *Batch) Get(id string) (Task, bool) {
	return b.reg.get(id)
}
