package application

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"jackpotd/database"
	"jackpotd/domain/entities"
	"jackpotd/domain/errs"
	"jackpotd/domain/events"
	"jackpotd/pipeline"
	"jackpotd/repository"
)

// ReplayContributions drains a bulk event source through the stream
// aggregator and applies the folded per-group contribution totals to
// the pools: one storage write per tier instead of one per event,
// bypassing the queue. Win totals are reported but never applied;
// payouts need the full transactional path, so a replay only surfaces
// them for reconciliation.
func (s *JackpotService) ReplayContributions(ctx context.Context, source pipeline.EventSource, streamCfg pipeline.StreamConfig) (*pipeline.AggregateResult, error) {
	aggregator := pipeline.NewStreamAggregator(streamCfg)

	result, err := aggregator.Aggregate(ctx, source)
	if err != nil {
		return result, fmt.Errorf("replay aggregation failed: %w", err)
	}

	log.WithFields(log.Fields{
		"events":         result.Events,
		"groups":         len(result.Totals),
		"finalBatchSize": result.FinalBatchSize,
		"gcHints":        result.GCHints,
	}).Info("Replay aggregation completed")

	applied := false
	for group, totals := range result.Totals {
		if !group.IsValid() {
			log.WithField("group", group).Warn("Skipping replay total for unknown pool group")
			continue
		}
		if totals.Wins > 0 {
			log.WithFields(log.Fields{
				"group":    group,
				"wins":     totals.Wins,
				"winCount": totals.WinCount,
			}).Warn("Replay stream carried win events; not applied, reconcile separately")
		}
		if totals.Contributions <= 0 {
			continue
		}
		if err := s.applyReplayTotal(ctx, group, totals); err != nil {
			return result, err
		}
		applied = true
	}

	if applied {
		s.poolCache.Invalidate(ctx)
	}
	return result, nil
}

func (s *JackpotService) applyReplayTotal(ctx context.Context, group entities.PoolGroup, totals *pipeline.GroupTotals) error {
	err := s.executor.Execute(ctx, pipeline.OpClassContribution, func(ctx context.Context, db *database.DB) error {
		repo := repository.NewJackpotRepository(db)

		pool, err := repo.GetByGroup(ctx, group)
		if err != nil {
			return err
		}
		if pool == nil {
			return errs.NewNotFoundError("jackpot pool", string(group))
		}

		added, newAmount, err := repo.AddContribution(ctx, pool.ID, totals.Contributions)
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"group":     group,
			"events":    totals.ContributionCount,
			"added":     added,
			"newAmount": newAmount,
		}).Info("Replay total applied to pool")
		s.bus.Emit(context.Background(), events.PoolUpdatedEvent{
			PoolID:    pool.ID,
			Group:     group,
			OldAmount: newAmount - added,
			NewAmount: newAmount,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply replay total for %s: %w", group, err)
	}
	return nil
}
