// Package runner schedules crawl cycles over the configured targets.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/radio-playlist-archiver/internal/crawl"
	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
	"github.com/JakeFAU/radio-playlist-archiver/internal/queue/memory"
	"github.com/JakeFAU/radio-playlist-archiver/internal/status"
)

// CycleTask is the status tracker name of the cycle in progress.
const CycleTask = "cycle"

// ErrBusy is returned by Submit when a cycle request is already pending.
var ErrBusy = errors.New("a crawl cycle is already pending")

// ErrUnknownTarget is returned when a request names a target that is not configured.
var ErrUnknownTarget = errors.New("unknown target")

// TargetProcessor crawls one target.
type TargetProcessor interface {
	ProcessTarget(ctx context.Context, target playlist.Target, maxPages int) (crawl.Result, error)
}

// Request asks for one crawl cycle.
type Request struct {
	// MaxPages bounds the listing pages per target; values below 1 mean the configured default.
	MaxPages int `json:"max_pages"`
	// Target limits the cycle to one target name. Empty means all targets.
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Config controls Runner behavior.
type Config struct {
	Targets         []playlist.Target
	DefaultMaxPages int
	Interval        time.Duration
	Concurrency     int
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	RunID   string
	Results []crawl.Result
	Failed  int
}

// Runner executes cycles one at a time. Scheduled ticks and submitted
// requests share a single-slot queue, so cycles never overlap and at most one
// request waits behind the running cycle.
type Runner struct {
	processor TargetProcessor
	tracker   *status.Tracker
	ids       playlist.IDGenerator
	queue     *memory.Queue[Request]
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Runner.
func New(
	processor TargetProcessor,
	tracker *status.Tracker,
	ids playlist.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultMaxPages < 1 {
		cfg.DefaultMaxPages = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	for _, t := range cfg.Targets {
		tracker.Register(targetTask(t.Name))
	}
	tracker.Register(CycleTask)
	return &Runner{
		processor: processor,
		tracker:   tracker,
		ids:       ids,
		queue:     memory.NewQueue[Request](1),
		cfg:       cfg,
		logger:    logger.Named("runner"),
	}
}

// Targets returns the configured targets.
func (r *Runner) Targets() []playlist.Target {
	return append([]playlist.Target(nil), r.cfg.Targets...)
}

// Submit queues a cycle request for Run to pick up.
func (r *Runner) Submit(req Request) error {
	if req.Target != "" {
		if _, err := SelectTargets(r.cfg.Targets, req.Target); err != nil {
			return err
		}
	}
	if !r.queue.TryEnqueue(req) {
		return ErrBusy
	}
	r.logger.Info("cycle requested",
		zap.String("reason", req.Reason),
		zap.String("target", req.Target),
		zap.Int("max_pages", req.MaxPages),
	)
	return nil
}

// Run performs one cycle immediately, then one per interval and one per
// submitted request, until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.queue.TryEnqueue(Request{Reason: "startup"})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !r.queue.TryEnqueue(Request{Reason: "schedule"}) {
					r.logger.Debug("scheduled cycle skipped; one is already pending")
				}
			}
		}
	}()
	defer wg.Wait()

	for {
		req, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dequeue cycle request: %w", err)
		}
		if _, err := r.Execute(ctx, req); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("crawl cycle finished with errors", zap.Error(err))
		}
	}
}

// RunCycle processes every configured target once.
func (r *Runner) RunCycle(ctx context.Context, maxPages int) (CycleReport, error) {
	return r.Execute(ctx, Request{MaxPages: maxPages, Reason: "manual"})
}

// Execute runs the cycle described by req and returns the joined errors of
// the targets that failed.
func (r *Runner) Execute(ctx context.Context, req Request) (CycleReport, error) {
	targets, err := SelectTargets(r.cfg.Targets, req.Target)
	if err != nil {
		return CycleReport{}, err
	}
	maxPages := req.MaxPages
	if maxPages < 1 {
		maxPages = r.cfg.DefaultMaxPages
	}
	runID, err := r.ids.NewID()
	if err != nil {
		return CycleReport{}, fmt.Errorf("generate run id: %w", err)
	}
	report := CycleReport{RunID: runID, Results: make([]crawl.Result, len(targets))}
	logger := r.logger.With(zap.String("run_id", runID))
	logger.Info("crawl cycle started",
		zap.String("reason", req.Reason),
		zap.Int("targets", len(targets)),
		zap.Int("max_pages", maxPages),
	)
	r.tracker.Start(CycleTask, fmt.Sprintf("crawling %d target(s), %d page(s) each", len(targets), maxPages))

	errs := make([]error, len(targets))
	var (
		mu   sync.Mutex
		done int
		wg   sync.WaitGroup
	)
	work := make(chan int)
	for range min(r.cfg.Concurrency, max(len(targets), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				report.Results[i], errs[i] = r.processTarget(ctx, targets[i], maxPages)
				mu.Lock()
				done++
				r.tracker.Progress(CycleTask, done*100/len(targets), "finished "+targets[i].Name)
				mu.Unlock()
			}
		}()
	}
	for i := range targets {
		if ctx.Err() != nil {
			break
		}
		work <- i
	}
	close(work)
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			report.Failed++
		}
	}
	cycleErr := errors.Join(errs...)
	if ctx.Err() != nil {
		cycleErr = errors.Join(cycleErr, ctx.Err())
	}
	if cycleErr != nil {
		r.tracker.Fail(CycleTask, cycleErr)
	} else {
		r.tracker.Finish(CycleTask, fmt.Sprintf("%d target(s) processed", len(targets)))
	}
	logger.Info("crawl cycle finished", zap.Int("failed_targets", report.Failed))
	return report, cycleErr
}

func (r *Runner) processTarget(ctx context.Context, target playlist.Target, maxPages int) (crawl.Result, error) {
	task := targetTask(target.Name)
	r.tracker.Start(task, fmt.Sprintf("crawling up to %d page(s)", maxPages))
	res, err := r.processor.ProcessTarget(ctx, target, maxPages)
	if err != nil {
		r.tracker.Fail(task, err)
		return res, fmt.Errorf("target %s: %w", target.Name, err)
	}
	r.tracker.Finish(task, fmt.Sprintf("%d new show(s), %d play(s), %d failure(s)",
		res.ShowsNew, res.PlaysInserted, res.Failures))
	return res, nil
}

// SelectTargets returns all targets, or only the named one when name is set.
func SelectTargets(targets []playlist.Target, name string) ([]playlist.Target, error) {
	if name == "" {
		return targets, nil
	}
	for _, t := range targets {
		if t.Name == name {
			return []playlist.Target{t}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
}

func targetTask(name string) string {
	return "target:" + name
}
