package service

import (
	"context"
	"fmt"
)

// Recover re-arms the offer and transaction timers of every open offer
// and pending transaction.  Deadlines that passed while the process was
// down fire right away.  Call it once at startup, after the scheduler is
// running.
func (s *Service) Recover(ctx context.Context) error {
	offers, err := s.entries.ListOffered(ctx, s.db)
	if err != nil {
		return fmt.Errorf("recover offers: %w", err)
	}
	for _, e := range offers {
		if e.OfferExpiresAt == nil {
			continue
		}
		s.armOfferTimer(e.ID, *e.OfferExpiresAt)
	}

	pending, err := s.txs.ListPending(ctx, s.db)
	if err != nil {
		return fmt.Errorf("recover transactions: %w", err)
	}
	for _, t := range pending {
		s.armTransactionTimer(t.ID, t.ExpiresAt)
	}
	s.logger.Info("timers recovered", "offers", len(offers), "transactions", len(pending))
	return nil
}
