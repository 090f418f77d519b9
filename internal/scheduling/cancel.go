package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	redisclient "github.com/bodywise/scheduling-service/internal/redis"
)

var (
	ErrAlreadyCancelled = errors.New("consultation already cancelled")
	ErrNotCancellable   = errors.New("consultation can no longer be cancelled")
)

// Cancel sets the consultation to cancelled, frees its slot and invalidates
// pending reminders, atomically. A second cancel is an error, never a silent
// success. The requester must be the consultation's patient or practitioner.
func (e *BookingEngine) Cancel(ctx context.Context, consultationID, requesterID uuid.UUID) error {
	c, err := e.repo.GetConsultationByID(ctx, consultationID)
	if err != nil {
		return fmt.Errorf("load consultation: %w", err)
	}
	if c.PatientID != requesterID && c.PractitionerID != requesterID {
		return ErrConsultationNotFound
	}
	switch c.Status {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusCompleted:
		return ErrNotCancellable
	}

	cancel := func(lockCtx context.Context) error {
		_, err := e.repo.CancelConsultation(lockCtx, consultationID)
		return err
	}

	// Cancellation and booking on the same slot share the reservation guard.
	if c.SlotID != nil {
		err = e.locker.WithLock(ctx, "slot:"+c.SlotID.String(), cancel)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return ErrSlotBeingBooked
		}
	} else {
		err = cancel(ctx)
	}
	if err != nil {
		return err
	}

	if c.SlotID != nil {
		e.cache.Invalidate(c.PractitionerID, dayOf(c.StartAt))
	}

	e.log.WithFields(logrus.Fields{
		"consultation_id": consultationID,
		"requester_id":    requesterID,
	}).Info("consultation cancelled")

	return nil
}
