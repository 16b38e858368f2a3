package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Reconcile recomputes each course's occupied-seat count directly from
// active bookings and logs an error for any course whose active bookings
// exceed its total seats. Adapted from the teacher's
// internal/workers/reconcile.go (ReconcileWorker.Reconcile /
// reconcileEventCounts); unlike the teacher it corrects nothing, since
// this engine keeps no separate booked_count column to drift from.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	courses, err := o.repo.ListCourses(ctx)
	if err != nil {
		return err
	}
	for _, c := range courses {
		active, err := o.repo.ActiveBookings(ctx, c.ID)
		if err != nil {
			log.Warn().Err(err).Str("course_id", c.ID).Msg("reconcile: failed to load active bookings")
			continue
		}
		if len(active) > c.Seats.TotalSeats() {
			log.Error().
				Str("course_id", c.ID).
				Int("active", len(active)).
				Int("total_seats", c.Seats.TotalSeats()).
				Msg("reconcile: active bookings exceed total seats")
		}
	}
	return nil
}
