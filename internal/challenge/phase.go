package challenge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/events"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/lifecycle"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/store"
)

// PatchPhase applies a direct patch to one phase instance.
func (s *Service) PatchPhase(ctx context.Context, challengeID, phaseInstanceID string, patch phase.Patch) (phase.Instance, error) {
	if patch.PhaseID != nil {
		if _, err := s.catalog.Definitions(ctx); err != nil {
			return phase.Instance{}, err
		}
	}

	var out phase.Instance
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Challenge(ctx, challengeID); err != nil {
			return err
		}
		in, siblings, err := tx.Phase(ctx, challengeID, phaseInstanceID)
		if err != nil {
			return err
		}
		guard := lifecycle.NewGuard(tx, s.catalog,
			lifecycle.WithLogger(s.logger),
			lifecycle.WithClock(s.now),
			lifecycle.WithIDGenerator(s.newID))
		out, err = guard.ApplyPatch(ctx, in, siblings, patch)
		if err != nil {
			return err
		}
		return tx.UpdatePhase(ctx, challengeID, out)
	})
	if err != nil {
		return phase.Instance{}, fmt.Errorf("patch phase %s: %w", phaseInstanceID, err)
	}

	s.logger.Info("phase updated",
		slog.String("challenge", challengeID),
		slog.String("phase", out.Name),
		slog.String("state", string(out.State())))
	s.publish(events.KindPhaseUpdated, challengeID, out.ID, out)
	return out, nil
}

// DeletePhase removes one phase instance, re-linking its dependants to its
// predecessor.
func (s *Service) DeletePhase(ctx context.Context, challengeID, phaseInstanceID string) (lifecycle.Deletion, error) {
	var del lifecycle.Deletion
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Challenge(ctx, challengeID); err != nil {
			return err
		}
		in, siblings, err := tx.Phase(ctx, challengeID, phaseInstanceID)
		if err != nil {
			return err
		}
		del = lifecycle.DeletePhase(in, siblings)
		for _, sib := range del.UpdatedSiblings {
			if err := tx.UpdatePhase(ctx, challengeID, sib); err != nil {
				return err
			}
		}
		return tx.DeletePhase(ctx, challengeID, del.DeletedID)
	})
	if err != nil {
		return lifecycle.Deletion{}, fmt.Errorf("delete phase %s: %w", phaseInstanceID, err)
	}

	s.logger.Info("phase deleted",
		slog.String("challenge", challengeID),
		slog.String("id", del.DeletedID),
		slog.Int("relinked", len(del.UpdatedSiblings)))
	s.publish(events.KindPhaseDeleted, challengeID, del.DeletedID, del)
	return del, nil
}
