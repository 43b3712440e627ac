package engine

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"signal-engine/pkg/logger"
	common "signal-engine/pkg/venue/common"
)

// SLTPStrategy applies protective levels to an already-open position.
// The venue amend endpoint returns no confirmation body, so the
// strategy decides how to treat a silent timeout, and degrades to
// partial protection when the venue rejects one of the combined levels.
type SLTPStrategy struct {
	gateway        common.Gateway
	confirmTimeout time.Duration
	assumeSuccess  bool
	log            *logrus.Entry
}

func NewSLTPStrategy(gateway common.Gateway, confirmTimeout time.Duration, assumeSuccess bool) *SLTPStrategy {
	if confirmTimeout <= 0 {
		confirmTimeout = 5 * time.Second
	}
	return &SLTPStrategy{
		gateway:        gateway,
		confirmTimeout: confirmTimeout,
		assumeSuccess:  assumeSuccess,
		log:            logger.Component("sltp"),
	}
}

// Apply sets stop loss and take profit on the position, both at once
// when possible. If the combined amend is rejected for invalid stops it
// falls back to stop-only, then target-only, so a position never runs
// fully naked just because one level was unacceptable. Returns the
// levels believed to be in effect.
func (s *SLTPStrategy) Apply(ctx context.Context, positionID string, sl, tp float64) (float64, float64, error) {
	if sl <= 0 && tp <= 0 {
		return 0, 0, nil
	}

	if sl > 0 && tp > 0 {
		err := s.amend(ctx, positionID, sl, tp)
		if err == nil {
			return sl, tp, nil
		}
		if reason, ok := common.RejectReasonOf(err); !ok || reason != common.RejectInvalidStops {
			return 0, 0, err
		}
		s.log.Warnf("position %s: combined SL/TP rejected, falling back to single-level amends", positionID)

		if slErr := s.amend(ctx, positionID, sl, 0); slErr == nil {
			s.log.Warnf("position %s: protected by stop loss only, take profit %.5f not applied", positionID, tp)
			return sl, 0, nil
		}
		if tpErr := s.amend(ctx, positionID, 0, tp); tpErr == nil {
			s.log.Warnf("position %s: protected by take profit only, stop loss %.5f not applied", positionID, sl)
			return 0, tp, nil
		}
		return 0, 0, errors.Wrapf(err, "position %s left unprotected", positionID)
	}

	if err := s.amend(ctx, positionID, sl, tp); err != nil {
		return 0, 0, err
	}
	return sl, tp, nil
}

// amend runs one amend round-trip under the confirmation timeout. A
// timeout is ambiguous: the venue may have applied the change without
// answering. With assumeSuccess the amend is treated as applied and a
// later stream event corrects the record if it was not.
func (s *SLTPStrategy) amend(ctx context.Context, positionID string, sl, tp float64) error {
	amendCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	err := s.gateway.AmendPosition(amendCtx, positionID, sl, tp)
	if err == nil {
		return nil
	}
	if stderrors.Is(err, common.ErrTimeout) || stderrors.Is(err, context.DeadlineExceeded) {
		if s.assumeSuccess {
			s.log.Warnf("position %s: amend unconfirmed after %v, assuming applied", positionID, s.confirmTimeout)
			return nil
		}
		return errors.Wrapf(err, "amend position %s unconfirmed", positionID)
	}
	return err
}
