package compaction

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/INLOpen/nexustier/core"
	"github.com/INLOpen/nexustier/internal/clock"
	"github.com/INLOpen/nexustier/throttle"
	"github.com/INLOpen/nexustier/tiering"
)

// ManagerInterface is the surface the owning store drives compactions through.
type ManagerInterface interface {
	Start(wg *sync.WaitGroup)
	SetMetricsCounters(
		compactionCount *expvar.Int,
		cancelledCount *expvar.Int,
		dataWrittenBytes *expvar.Int,
		filesMerged *expvar.Int,
	)
	Stop()
	Trigger()
}

// Catalog is the store-side view the manager operates on. It owns the live
// file set; the manager never creates or retires files directly.
type Catalog interface {
	// Candidates returns the current live files eligible for compaction.
	Candidates() []core.StoreFile
	// SmallestReadPoint is the lowest MVCC readpoint across active readers.
	SmallestReadPoint() uint64
	// WriterFactory creates output writers for a compaction.
	WriterFactory() core.StoreFileWriterFactory
	// DropPolicy is the visibility oracle for major rewrites; may return nil.
	DropPolicy() core.DropPolicy
	// Commit atomically replaces the request's input files with the outputs
	// produced by the finished compaction.
	Commit(ctx context.Context, req *tiering.Request) error
	// IsLive reports whether the store is still open.
	IsLive() bool
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Policy        *tiering.Policy
	Executor      *Executor
	Catalog       Catalog
	Throughput    throttle.Controller
	OffPeak       tiering.OffPeakHours
	Clock         clock.Clock
	Logger        *slog.Logger
	Tracer        trace.Tracer
	CheckInterval time.Duration
	// MaxConcurrent bounds how many compactions may run at once.
	MaxConcurrent int
}

// Manager runs the periodic check-select-execute loop: it asks the policy
// whether work exists, claims the selected files so overlapping selections
// cannot run, and hands the request to the executor on a worker goroutine.
type Manager struct {
	policy     *tiering.Policy
	executor   *Executor
	catalog    Catalog
	throughput throttle.Controller
	offPeak    tiering.OffPeakHours
	clock      clock.Clock

	checkInterval time.Duration
	triggerChan   chan struct{}
	shutdownChan  chan struct{}
	workerWg      sync.WaitGroup
	semaphore     *semaphore.Weighted
	maxConcurrent int

	mu         sync.Mutex
	inProgress map[uint64]core.StoreFile

	logger *slog.Logger
	tracer trace.Tracer

	// Metrics
	compactionCount         *expvar.Int
	compactionCancelled     *expvar.Int
	metricsDataWrittenBytes *expvar.Int
	metricsFilesMerged      *expvar.Int
}

var _ ManagerInterface = (*Manager)(nil)

// NewManager applies defaults for absent options. Policy, Executor and
// Catalog are required.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Policy == nil || opts.Executor == nil || opts.Catalog == nil {
		return nil, fmt.Errorf("compaction: manager requires policy, executor and catalog")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.SystemClockDefault
	}
	interval := opts.CheckInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	throughput := opts.Throughput
	if throughput == nil {
		throughput = throttle.NewUnlimited()
	}
	return &Manager{
		policy:        opts.Policy,
		executor:      opts.Executor,
		catalog:       opts.Catalog,
		throughput:    throughput,
		offPeak:       opts.OffPeak,
		clock:         clk,
		checkInterval: interval,
		triggerChan:   make(chan struct{}, 1),
		shutdownChan:  make(chan struct{}),
		semaphore:     semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent: maxConcurrent,
		inProgress:    make(map[uint64]core.StoreFile),
		logger:        logger.With("component", "CompactionManager"),
		tracer:        opts.Tracer,
	}, nil
}

// SetMetricsCounters wires the manager to the owning process's expvar
// counters. Nil counters are tolerated.
func (m *Manager) SetMetricsCounters(
	compactionCount *expvar.Int,
	cancelledCount *expvar.Int,
	dataWrittenBytes *expvar.Int,
	filesMerged *expvar.Int,
) {
	m.compactionCount = compactionCount
	m.compactionCancelled = cancelledCount
	m.metricsDataWrittenBytes = dataWrittenBytes
	m.metricsFilesMerged = filesMerged
}

// Start begins the background compaction loop.
func (m *Manager) Start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.performCompactionCycle()
			case <-m.triggerChan:
				m.performCompactionCycle()
			case <-m.shutdownChan:
				m.logger.Info("Shutting down compaction loop.")
				return
			}
		}
	}()
	m.logger.Info("Started background compaction loop.", "check_interval", m.checkInterval.String())
}

// Stop signals the loop to shut down and waits for active compactions to
// drain. Safe to call more than once.
func (m *Manager) Stop() {
	select {
	case <-m.shutdownChan:
	default:
		close(m.shutdownChan)
	}
	m.workerWg.Wait()
	m.logger.Info("Compaction loop stopped.")
}

// Trigger manually signals the loop to perform a check.
func (m *Manager) Trigger() {
	select {
	case m.triggerChan <- struct{}{}:
		m.logger.Info("Manual compaction check triggered.")
	default:
		m.logger.Info("Compaction check already pending, skipping manual trigger.")
	}
}

// InProgress returns the files currently claimed by running compactions.
func (m *Manager) InProgress() []core.StoreFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	files := make([]core.StoreFile, 0, len(m.inProgress))
	for _, f := range m.inProgress {
		files = append(files, f)
	}
	return files
}

// performCompactionCycle selects at most one compaction per cycle and runs it
// on a worker goroutine when a concurrency slot is free.
func (m *Manager) performCompactionCycle() {
	ctx := context.Background()
	var span trace.Span
	if m.tracer != nil {
		ctx, span = m.tracer.Start(ctx, "Manager.performCompactionCycle")
		defer span.End()
	}

	candidates := m.catalog.Candidates()
	inProgress := m.InProgress()
	if !m.policy.NeedsCompaction(candidates, inProgress) {
		m.logger.Debug("No compaction needed in this cycle.", "candidates", len(candidates), "in_progress", len(inProgress))
		return
	}

	req := m.selectRequest(candidates, inProgress)
	if req == nil || req.Empty() {
		m.logger.Debug("Policy signalled need but produced no selection; files may be claimed.")
		return
	}

	if !m.semaphore.TryAcquire(1) {
		m.logger.Debug("Skipping compaction due to concurrency limit.", "max_concurrent", m.maxConcurrent)
		if span != nil {
			span.SetAttributes(attribute.String("compaction.skipped_reason", "concurrency_limit"))
		}
		return
	}

	m.claim(req.Files)
	m.workerWg.Add(1)
	m.logger.Info("Compaction selected, starting task.",
		"major", req.Major,
		"input_files", len(req.Files),
		"input_bytes", req.TotalSize())

	go func(parentCtx context.Context, req *tiering.Request) {
		defer func() {
			m.release(req.Files)
			m.semaphore.Release(1)
			m.workerWg.Done()
		}()
		m.runCompaction(parentCtx, req)
	}(ctx, req)
}

// selectRequest prefers a due major rewrite over a minor one. The selection
// sees only unclaimed files.
func (m *Manager) selectRequest(candidates, inProgress []core.StoreFile) *tiering.Request {
	eligible := excludeFiles(candidates, inProgress)
	if len(inProgress) == 0 && m.policy.ShouldPerformMajorCompaction(eligible) {
		return m.policy.SelectMajorCompaction(eligible)
	}
	return m.policy.SelectMinorCompaction(eligible, m.offPeak.Contains(m.clock.Now()))
}

func (m *Manager) runCompaction(parentCtx context.Context, req *tiering.Request) {
	ctx := parentCtx
	var span trace.Span
	if m.tracer != nil {
		ctx, span = m.tracer.Start(parentCtx, "Manager.CompactionWorker")
		defer span.End()
		span.SetAttributes(attribute.Bool("compaction.major", req.Major))
	}

	allFiles := req.Major && len(m.catalog.Candidates()) == len(req.Files)
	startTime := m.clock.Now()
	progress := &Progress{}
	res, err := m.executor.Execute(ctx, ExecuteParams{
		Request:           req,
		WriterFactory:     m.catalog.WriterFactory(),
		SmallestReadPoint: m.catalog.SmallestReadPoint(),
		AllFilesIncluded:  allFiles,
		CleanSeqID:        allFiles,
		DropPolicy:        m.catalog.DropPolicy(),
		Throughput:        m.throughput,
		IsLive:            m.catalog.IsLive,
	}, progress)
	if err != nil {
		m.logger.Error("Compaction task failed.", "major", req.Major, "error", err)
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("compaction failed: %v", err))
		}
		return
	}
	if res.Status == StatusCancelled {
		m.logger.Info("Compaction task cancelled.", "major", req.Major)
		if m.compactionCancelled != nil {
			m.compactionCancelled.Add(1)
		}
		return
	}

	if err := m.catalog.Commit(ctx, req); err != nil {
		m.logger.Error("Failed to commit compaction outputs.", "error", err)
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("commit failed: %v", err))
		}
		return
	}

	duration := m.clock.Now().Sub(startTime)
	if m.compactionCount != nil {
		m.compactionCount.Add(1)
	}
	if m.metricsDataWrittenBytes != nil {
		m.metricsDataWrittenBytes.Add(res.BytesWritten)
	}
	if m.metricsFilesMerged != nil {
		m.metricsFilesMerged.Add(int64(len(req.Files)))
	}
	if span != nil {
		span.SetAttributes(
			attribute.Float64("compaction.duration_seconds", duration.Seconds()),
			attribute.Bool("compaction.performed", true),
		)
	}
	m.logger.Info("Compaction task finished successfully.",
		"major", req.Major,
		"duration_seconds", duration.Seconds(),
		"cells_written", res.CellsWritten,
		"bytes_written", res.BytesWritten)
}

func (m *Manager) claim(files []core.StoreFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range files {
		m.inProgress[f.ID()] = f
	}
}

func (m *Manager) release(files []core.StoreFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range files {
		delete(m.inProgress, f.ID())
	}
}

func excludeFiles(candidates, exclude []core.StoreFile) []core.StoreFile {
	if len(exclude) == 0 {
		return candidates
	}
	excluded := make(map[uint64]struct{}, len(exclude))
	for _, f := range exclude {
		excluded[f.ID()] = struct{}{}
	}
	out := make([]core.StoreFile, 0, len(candidates))
	for _, f := range candidates {
		if _, ok := excluded[f.ID()]; !ok {
			out = append(out, f)
		}
	}
	return out
}
