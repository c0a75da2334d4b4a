package pgwire

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/riftpg/pgwire/codes"
)

// cancelDialTimeout bounds the auxiliary connection a query-timeout
// cancellation opens; it is not itself configurable since a hung cancel
// dial must never extend the deadline it exists to enforce.
const cancelDialTimeout = 5 * time.Second

// armQueryTimeout schedules a CancelRequest for Settings.QueryTimeout from
// now, per §4.5's timeout handling. The returned stop function disarms the
// timer and reports whether it fired before being stopped; callers must
// call it exactly once, after the statement's round trip completes.
func (s *Session) armQueryTimeout() (stop func() bool) {
	if s.settings.QueryTimeout <= 0 {
		return func() bool { return false }
	}

	var fired atomic.Bool
	timer := time.AfterFunc(s.settings.QueryTimeout, func() {
		fired.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), cancelDialTimeout)
		defer cancel()
		_ = s.Cancel(ctx)
	})

	return func() bool {
		timer.Stop()
		return fired.Load()
	}
}

// resolveTimeout reclassifies a query_canceled (57014) ServerError as
// KindTimeout when it followed a CancelRequest this session itself
// scheduled, so callers can distinguish "the statement was too slow" from
// an application-initiated or out-of-band cancellation.
func (s *Session) resolveTimeout(err error, timedOut bool) error {
	if err == nil || !timedOut {
		return err
	}

	var pgErr *Error
	if errors.As(err, &pgErr) && pgErr.Details != nil && pgErr.Details.Code == codes.QueryCanceled {
		return newError(KindTimeout, fmt.Errorf("pgwire: statement canceled after exceeding query timeout of %s: %w", s.settings.QueryTimeout, err))
	}

	return err
}
