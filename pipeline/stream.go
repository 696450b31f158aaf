package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"jackpotd/domain/entities"

	log "github.com/sirupsen/logrus"
)

// StreamEventKind distinguishes replayed event types
type StreamEventKind string

const (
	StreamEventContribution StreamEventKind = "contribution"
	StreamEventWin          StreamEventKind = "win"
)

// StreamEvent is one replayed contribution or win
type StreamEvent struct {
	Kind   StreamEventKind    `json:"kind"`
	Group  entities.PoolGroup `json:"group"`
	UserID int64              `json:"user_id"`
	Amount int64              `json:"amount"`
}

// EventSource is a pull iterator over a finite, non-restartable event
// sequence. Next returns io.EOF once the sequence is exhausted.
type EventSource interface {
	Next(ctx context.Context) (StreamEvent, error)
}

// GroupTotals accumulates per-tier sums during a replay
type GroupTotals struct {
	Contributions     int64 `json:"contributions"`
	ContributionCount int   `json:"contribution_count"`
	Wins              int64 `json:"wins"`
	WinCount          int   `json:"win_count"`
}

// AggregateResult is the outcome of a completed replay
type AggregateResult struct {
	Totals         map[entities.PoolGroup]*GroupTotals `json:"totals"`
	Events         int                                 `json:"events"`
	FinalBatchSize int                                 `json:"final_batch_size"`
	GCHints        int                                 `json:"gc_hints"`
}

// StreamConfig tunes batching and memory discipline. Zero values take
// the defaults.
type StreamConfig struct {
	BatchSize         int
	MinBatchSize      int
	MemoryBudgetBytes uint64
	GCThreshold       float64
	HardCeiling       float64
}

func (c *StreamConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.MinBatchSize <= 0 {
		c.MinBatchSize = 50
	}
	if c.MemoryBudgetBytes == 0 {
		c.MemoryBudgetBytes = 512 << 20
	}
	if c.GCThreshold <= 0 {
		c.GCThreshold = 0.75
	}
	if c.HardCeiling <= 0 {
		c.HardCeiling = 0.90
	}
}

// StreamAggregator folds a bulk event stream into per-group totals
// without materializing the sequence. It processes fixed-size chunks,
// discarding each before pulling the next, and degrades batch size
// under memory pressure instead of aborting.
type StreamAggregator struct {
	cfg      StreamConfig
	heapSize func() uint64
}

// NewStreamAggregator creates an aggregator
func NewStreamAggregator(cfg StreamConfig) *StreamAggregator {
	cfg.applyDefaults()
	return &StreamAggregator{
		cfg:      cfg,
		heapSize: liveHeapBytes,
	}
}

// Aggregate drains the source to completion. A source error other
// than io.EOF aborts and returns what was accumulated so far alongside
// the error.
func (s *StreamAggregator) Aggregate(ctx context.Context, source EventSource) (*AggregateResult, error) {
	result := &AggregateResult{
		Totals:         make(map[entities.PoolGroup]*GroupTotals),
		FinalBatchSize: s.cfg.BatchSize,
	}

	batchSize := s.cfg.BatchSize
	batch := make([]StreamEvent, 0, batchSize)

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch = batch[:0]
		done := false
		for len(batch) < batchSize {
			event, err := source.Next(ctx)
			if errors.Is(err, io.EOF) {
				done = true
				break
			}
			if err != nil {
				return result, fmt.Errorf("stream source failed: %w", err)
			}
			batch = append(batch, event)
		}

		s.fold(result, batch)
		result.Events += len(batch)

		if done {
			result.FinalBatchSize = batchSize
			return result, nil
		}

		batchSize = s.relieveMemoryPressure(result, batchSize)
		if cap(batch) > batchSize {
			// Shrink the buffer too, otherwise halving is cosmetic
			batch = make([]StreamEvent, 0, batchSize)
		}
	}
}

func (s *StreamAggregator) fold(result *AggregateResult, batch []StreamEvent) {
	for _, event := range batch {
		totals := result.Totals[event.Group]
		if totals == nil {
			totals = &GroupTotals{}
			result.Totals[event.Group] = totals
		}
		switch event.Kind {
		case StreamEventWin:
			totals.Wins += event.Amount
			totals.WinCount++
		default:
			totals.Contributions += event.Amount
			totals.ContributionCount++
		}
	}
}

// relieveMemoryPressure checks heap use against the budget after each
// chunk. Crossing the GC threshold hints a collection; crossing the
// hard ceiling additionally halves the batch size for all subsequent
// chunks. The replay always continues.
func (s *StreamAggregator) relieveMemoryPressure(result *AggregateResult, batchSize int) int {
	used := s.heapSize()
	fraction := float64(used) / float64(s.cfg.MemoryBudgetBytes)

	if fraction >= s.cfg.HardCeiling {
		halved := batchSize / 2
		if halved < s.cfg.MinBatchSize {
			halved = s.cfg.MinBatchSize
		}
		if halved != batchSize {
			log.WithFields(log.Fields{
				"heapBytes":    used,
				"oldBatchSize": batchSize,
				"newBatchSize": halved,
			}).Warn("Memory ceiling reached, halving replay batch size")
		}
		runtime.GC()
		result.GCHints++
		return halved
	}

	if fraction >= s.cfg.GCThreshold {
		runtime.GC()
		result.GCHints++
	}
	return batchSize
}

func liveHeapBytes() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}
