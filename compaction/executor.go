// Package compaction executes the file rewrites the tiering policy selects:
// it merges the input cell streams, scrubs sequence ids that no reader can
// still observe, routes output across window boundaries and paces itself
// against a throughput controller.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/nexustier/core"
	"github.com/INLOpen/nexustier/internal/clock"
	"github.com/INLOpen/nexustier/iterator"
	"github.com/INLOpen/nexustier/throttle"
	"github.com/INLOpen/nexustier/tiering"
)

// DefaultCloseCheckIntervalBytes is how many output bytes may be written
// between liveness polls when the configuration does not override it.
const DefaultCloseCheckIntervalBytes = 10 * 1024 * 1024

// ExecuteParams carries one compaction's inputs and collaborators.
type ExecuteParams struct {
	// Request is the selected file set with its output boundaries.
	Request *tiering.Request
	// WriterFactory creates the per-window output writers.
	WriterFactory core.StoreFileWriterFactory
	// SmallestReadPoint is the lowest MVCC readpoint any active reader may
	// still observe. Sequence ids at or below it carry no information.
	SmallestReadPoint uint64
	// AllFilesIncluded reports whether the request covers every live file of
	// the store. Only then may the seq-id retention floor apply.
	AllFilesIncluded bool
	// CleanSeqID requests zeroing of sequence ids below the readpoint.
	CleanSeqID bool
	// DropPolicy is consulted per cell on major compactions; nil keeps all.
	DropPolicy core.DropPolicy
	// Throughput paces the writes; nil means unlimited.
	Throughput throttle.Controller
	// IsLive reports whether the owning store is still open. Checked every
	// closeCheckIntervalBytes of output; nil means always live.
	IsLive func() bool
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	Clock  clock.Clock
	// KeepSeqIDPeriod protects sequence ids of files younger than this from
	// being zeroed.
	KeepSeqIDPeriod time.Duration
	// CloseCheckIntervalBytes is the output volume between liveness polls.
	CloseCheckIntervalBytes int64
}

// Executor performs compactions. It is stateless between executions apart
// from its configuration, so one instance may serve concurrent operations,
// each with its own Progress.
type Executor struct {
	logger             *slog.Logger
	tracer             trace.Tracer
	clock              clock.Clock
	keepSeqIDPeriod    time.Duration
	closeCheckInterval int64
}

// NewExecutor applies defaults for absent options.
func NewExecutor(opts ExecutorOptions) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.SystemClockDefault
	}
	interval := opts.CloseCheckIntervalBytes
	if interval <= 0 {
		interval = DefaultCloseCheckIntervalBytes
	}
	return &Executor{
		logger:             logger.With("component", "CompactionExecutor"),
		tracer:             opts.Tracer,
		clock:              clk,
		keepSeqIDPeriod:    opts.KeepSeqIDPeriod,
		closeCheckInterval: interval,
	}
}

// Execute runs one compaction to completion, cancellation or failure. On
// cancellation and failure all partial output is aborted and the inputs are
// left untouched; the caller must not retire any input file unless the
// returned error is nil and the status is StatusCompleted.
func (e *Executor) Execute(ctx context.Context, params ExecuteParams, progress *Progress) (Result, error) {
	if params.Request == nil || params.Request.Empty() {
		return Result{}, errors.New("compaction: empty request")
	}
	if params.WriterFactory == nil {
		return Result{}, errors.New("compaction: writer factory is required")
	}
	if progress == nil {
		progress = &Progress{}
	}

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "Executor.Execute")
		defer span.End()
		span.SetAttributes(
			attribute.Int("compaction.input_files", len(params.Request.Files)),
			attribute.Bool("compaction.major", params.Request.Major),
			attribute.Int64("compaction.input_bytes", params.Request.TotalSize()),
		)
	}

	now := e.clock.Now()
	fd := GatherFileDetails(params.Request.Files, params.AllFilesIncluded, e.keepSeqIDPeriod.Milliseconds(), now.UnixMilli(), e.logger)

	smallestReadPoint := params.SmallestReadPoint
	cleanSeqID := params.CleanSeqID
	if params.AllFilesIncluded && fd.MinSeqIDToKeep > 0 {
		// Every reader of the retired files will be replaced; the retention
		// floor becomes the effective readpoint and cleanup is mandatory so
		// stale ids cannot outlive their files.
		if fd.MinSeqIDToKeep < smallestReadPoint {
			smallestReadPoint = fd.MinSeqIDToKeep
		}
		cleanSeqID = true
	}

	sink, err := NewBoundaryMultiWriter(params.Request.Boundaries, fd.MaxKeyCount, params.WriterFactory)
	if err != nil {
		e.recordFailure(span, err)
		return Result{}, err
	}

	merged, err := e.openInputs(params.Request.Files)
	if err != nil {
		e.recordFailure(span, err)
		abortErr := sink.Abort()
		return Result{}, errors.Join(err, abortErr)
	}
	defer merged.Close()

	opName := fmt.Sprintf("compaction-%d-files", len(params.Request.Files))
	controller := params.Throughput
	if controller == nil {
		controller = throttle.NewUnlimited()
	}
	controller.Start(opName)
	defer controller.Finish(opName)

	e.logger.Info("compaction started",
		"op", opName,
		"major", params.Request.Major,
		"input_files", len(params.Request.Files),
		"input_bytes", params.Request.TotalSize(),
		"boundaries", len(params.Request.Boundaries),
		"clean_seq_id", cleanSeqID,
		"smallest_read_point", smallestReadPoint)

	res, runErr := e.run(ctx, params, merged, sink, progress, controller, opName, smallestReadPoint, cleanSeqID)
	if runErr != nil {
		e.recordFailure(span, runErr)
		abortErr := sink.Abort()
		return Result{}, errors.Join(runErr, abortErr)
	}
	if res.Status == StatusCancelled {
		if span != nil {
			span.SetAttributes(attribute.String("compaction.status", res.Status.String()))
		}
		abortErr := sink.Abort()
		if abortErr != nil {
			e.logger.Warn("failed to discard partial compaction output", "op", opName, "error", abortErr)
		}
		e.logger.Info("compaction cancelled", "op", opName, "cells_written", res.CellsWritten)
		return res, nil
	}

	meta := core.OutputMetadata{
		MaxSeqID:        fd.MaxSeqID,
		MajorCompaction: params.Request.Major,
		EarliestPutTs:   fd.EarliestPutTs,
		LatestPutTs:     fd.LatestPutTs,
		MaxTagsLength:   fd.MaxTagsLength,
	}
	if err := sink.FinishWithMetadata(meta); err != nil {
		e.recordFailure(span, err)
		return Result{}, fmt.Errorf("compaction: finalizing output: %w", err)
	}

	res.BytesWritten = sink.BytesWritten()
	if span != nil {
		span.SetAttributes(
			attribute.String("compaction.status", res.Status.String()),
			attribute.Int64("compaction.bytes_written", res.BytesWritten),
			attribute.Int("compaction.output_files", sink.WriterCount()),
		)
	}
	e.logger.Info("compaction finished",
		"op", opName,
		"duration", e.clock.Now().Sub(now).String(),
		"cells_written", res.CellsWritten,
		"bytes_written", res.BytesWritten,
		"output_files", sink.WriterCount())
	return res, nil
}

// run is the per-cell loop. It returns StatusCancelled without error when the
// operation must stop cooperatively; the caller aborts the sink.
func (e *Executor) run(ctx context.Context, params ExecuteParams, merged core.CellIterator, sink *BoundaryMultiWriter, progress *Progress, controller throttle.Controller, opName string, smallestReadPoint uint64, cleanSeqID bool) (Result, error) {
	dropPolicy := params.DropPolicy
	lastCloseCheck := int64(0)

	for merged.Next() {
		cell, err := merged.At()
		if err != nil {
			return Result{}, fmt.Errorf("compaction: reading input: %w", err)
		}
		progress.cellsRead.Add(1)

		// Version visibility and expiry decisions only apply when the whole
		// history of a key is present, which only a major rewrite guarantees.
		if params.Request.Major && dropPolicy != nil && dropPolicy.ShouldDrop(cell) {
			continue
		}

		if cleanSeqID && cell.SeqID <= smallestReadPoint {
			cell.SeqID = 0
		}

		if err := sink.Append(cell); err != nil {
			return Result{}, fmt.Errorf("compaction: writing output: %w", err)
		}
		progress.cellsWritten.Add(1)
		written := sink.BytesWritten()
		progress.bytesWritten.Store(written)

		if err := controller.Control(ctx, opName, int64(cell.EncodedSize())); err != nil {
			// Interrupted throttling is a shutdown signal, not a failure.
			e.logger.Info("compaction throttle interrupted", "op", opName, "error", err)
			return Result{Status: StatusCancelled, CellsWritten: progress.CellsWritten()}, nil
		}

		if written-lastCloseCheck >= e.closeCheckInterval {
			lastCloseCheck = written
			if ctx.Err() != nil || (params.IsLive != nil && !params.IsLive()) {
				return Result{Status: StatusCancelled, CellsWritten: progress.CellsWritten()}, nil
			}
		}
	}
	if err := merged.Error(); err != nil {
		return Result{}, fmt.Errorf("compaction: input stream failed: %w", err)
	}
	return Result{Status: StatusCompleted, CellsWritten: progress.CellsWritten()}, nil
}

// openInputs creates one iterator per input file and merges them. Already
// opened iterators are closed if a later open fails.
func (e *Executor) openInputs(files []core.StoreFile) (core.CellIterator, error) {
	iters := make([]core.CellIterator, 0, len(files))
	for _, f := range files {
		it, err := f.NewIterator()
		if err != nil {
			for _, opened := range iters {
				opened.Close()
			}
			return nil, fmt.Errorf("compaction: opening file %d: %w", f.ID(), err)
		}
		iters = append(iters, it)
	}
	return iterator.NewMerging(iters)
}

func (e *Executor) recordFailure(span trace.Span, err error) {
	e.logger.Error("compaction failed", "error", err)
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
