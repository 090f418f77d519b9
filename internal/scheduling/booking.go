package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	redisclient "github.com/bodywise/scheduling-service/internal/redis"
)

var (
	ErrSlotAlreadyBooked       = errors.New("slot is already booked")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrTimeConflict            = errors.New("an active consultation overlaps that time")
	ErrDailyCapExceeded        = errors.New("daily consultation limit reached")
	ErrInvalidStartTime        = errors.New("start time must be in the future")
	ErrInvalidStatusTransition = errors.New("invalid consultation status transition")
	ErrMeetingProvision        = errors.New("meeting room provisioning failed")
)

// BookingEngine reserves slots into consultations. The check-and-reserve
// sequence runs under a per-key reservation lock and commits through the
// repository's conditional-update transaction, so two callers racing on the
// same slot produce exactly one consultation.
type BookingEngine struct {
	repo        Repository
	locker      redisclient.Locker
	provisioner MeetingProvisioner
	sender      EmailSender
	cache       *SlotCache
	clock       Clock
	log         *logrus.Logger
}

func NewBookingEngine(repo Repository, locker redisclient.Locker, provisioner MeetingProvisioner, sender EmailSender, cache *SlotCache, clock Clock, log *logrus.Logger) *BookingEngine {
	return &BookingEngine{
		repo:        repo,
		locker:      locker,
		provisioner: provisioner,
		sender:      sender,
		cache:       cache,
		clock:       clock,
		log:         log,
	}
}

// Book reserves the slot for the patient. The slot must belong to the
// practitioner and be free, and the patient must be under the daily cap.
func (e *BookingEngine) Book(ctx context.Context, patientID, practitionerID, slotID uuid.UUID, notes *string) (*Consultation, error) {
	patient, err := e.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	practitioner, err := e.repo.GetPractitionerByID(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("load practitioner: %w", err)
	}

	slot, err := e.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.PractitionerID != practitionerID {
		return nil, ErrSlotNotFound
	}
	if slot.Booked {
		return nil, ErrSlotAlreadyBooked
	}

	now := e.clock.Now()
	count, err := e.repo.CountActiveConsultations(ctx, patientID, slot.Date())
	if err != nil {
		return nil, fmt.Errorf("count consultations: %w", err)
	}
	if count >= DailyConsultationCap {
		return nil, ErrDailyCapExceeded
	}

	// Provision the room before reserving anything. A provisioning failure
	// aborts the booking with nothing persisted.
	roomID, link, err := e.provisioner.CreateRoom(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMeetingProvision, err)
	}

	consultationID := uuid.New()
	reminders := buildReminderJobs(consultationID, patient.Email, practitioner.Email, slot.StartAt, now)

	var created *Consultation
	err = e.locker.WithLock(ctx, "slot:"+slotID.String(), func(lockCtx context.Context) error {
		var reserveErr error
		created, reserveErr = e.repo.ReserveSlot(lockCtx, ReserveSlotParams{
			ConsultationID:  consultationID,
			SlotID:          slotID,
			PatientID:       patientID,
			PractitionerID:  practitionerID,
			StartAt:         slot.StartAt,
			DurationMinutes: ConsultationMinutes,
			MeetingLink:     link,
			RoomID:          roomID,
			Notes:           notes,
			DailyCap:        DailyConsultationCap,
			Reminders:       reminders,
		})
		return reserveErr
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	e.cache.Invalidate(practitionerID, slot.Date())

	e.log.WithFields(logrus.Fields{
		"consultation_id": created.ID,
		"patient_id":      patientID,
		"practitioner_id": practitionerID,
		"slot_id":         slotID,
		"start_at":        created.StartAt,
	}).Info("consultation booked")

	dispatchConfirmations(ctx, e.repo, e.sender, e.log, created, reminders)

	return created, nil
}

// BookAdHoc is the legacy entry path without a pre-created slot. The overlap
// check against the practitioner's active consultations runs inside the
// reservation transaction, guarded by a practitioner/time bucket lock.
func (e *BookingEngine) BookAdHoc(ctx context.Context, patientID, practitionerID uuid.UUID, startAt time.Time, notes *string) (*Consultation, error) {
	now := e.clock.Now()
	if !startAt.After(now) {
		return nil, ErrInvalidStartTime
	}

	patient, err := e.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	practitioner, err := e.repo.GetPractitionerByID(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("load practitioner: %w", err)
	}

	count, err := e.repo.CountActiveConsultations(ctx, patientID, dayOf(startAt))
	if err != nil {
		return nil, fmt.Errorf("count consultations: %w", err)
	}
	if count >= DailyConsultationCap {
		return nil, ErrDailyCapExceeded
	}

	roomID, link, err := e.provisioner.CreateRoom(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMeetingProvision, err)
	}

	consultationID := uuid.New()
	reminders := buildReminderJobs(consultationID, patient.Email, practitioner.Email, startAt, now)

	lockKey := fmt.Sprintf("adhoc:%s:%d", practitionerID, startAt.Unix())

	var created *Consultation
	err = e.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		var reserveErr error
		created, reserveErr = e.repo.ReserveAdHoc(lockCtx, ReserveAdHocParams{
			ConsultationID:  consultationID,
			PatientID:       patientID,
			PractitionerID:  practitionerID,
			StartAt:         startAt,
			DurationMinutes: ConsultationMinutes,
			MeetingLink:     link,
			RoomID:          roomID,
			Notes:           notes,
			DailyCap:        DailyConsultationCap,
			Reminders:       reminders,
		})
		return reserveErr
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"consultation_id": created.ID,
		"patient_id":      patientID,
		"practitioner_id": practitionerID,
		"start_at":        created.StartAt,
	}).Info("ad-hoc consultation booked")

	dispatchConfirmations(ctx, e.repo, e.sender, e.log, created, reminders)

	return created, nil
}

// Confirm advances a scheduled consultation to confirmed. The requester must
// be the consultation's patient or practitioner.
func (e *BookingEngine) Confirm(ctx context.Context, consultationID, requesterID uuid.UUID) (*Consultation, error) {
	c, err := e.repo.GetConsultationByID(ctx, consultationID)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}
	if c.PatientID != requesterID && c.PractitionerID != requesterID {
		return nil, ErrConsultationNotFound
	}
	if c.Status != StatusScheduled {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := e.repo.UpdateConsultationStatus(ctx, consultationID, StatusScheduled, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			// Lost a race with a concurrent transition.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("confirm consultation: %w", err)
	}
	return updated, nil
}

func (e *BookingEngine) Get(ctx context.Context, consultationID, requesterID uuid.UUID) (*Consultation, error) {
	c, err := e.repo.GetConsultationByID(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if c.PatientID != requesterID && c.PractitionerID != requesterID {
		return nil, ErrConsultationNotFound
	}
	return c, nil
}

func (e *BookingEngine) ListByPatient(ctx context.Context, patientID uuid.UUID, status *ConsultationStatus) ([]Consultation, error) {
	return e.repo.ListConsultationsByPatient(ctx, patientID, status)
}

func (e *BookingEngine) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, status *ConsultationStatus) ([]Consultation, error) {
	return e.repo.ListConsultationsByPractitioner(ctx, practitionerID, status)
}

// buildReminderJobs assembles the reminder set for a new consultation: an
// immediate confirmation for both parties, and 24h/1h reminders for the
// patient only when their trigger time is still ahead of now.
func buildReminderJobs(consultationID uuid.UUID, patientEmail, practitionerEmail string, startAt, now time.Time) []ReminderJob {
	jobs := []ReminderJob{
		{
			ID:             uuid.New(),
			ConsultationID: consultationID,
			RecipientEmail: patientEmail,
			Type:           ReminderConfirmation,
			ScheduledAt:    now,
			Status:         ReminderPending,
		},
		{
			ID:             uuid.New(),
			ConsultationID: consultationID,
			RecipientEmail: practitionerEmail,
			Type:           ReminderConfirmation,
			ScheduledAt:    now,
			Status:         ReminderPending,
		},
	}

	if at := startAt.Add(-24 * time.Hour); at.After(now) {
		jobs = append(jobs, ReminderJob{
			ID:             uuid.New(),
			ConsultationID: consultationID,
			RecipientEmail: patientEmail,
			Type:           Reminder24Hour,
			ScheduledAt:    at,
			Status:         ReminderPending,
		})
	}
	if at := startAt.Add(-time.Hour); at.After(now) {
		jobs = append(jobs, ReminderJob{
			ID:             uuid.New(),
			ConsultationID: consultationID,
			RecipientEmail: patientEmail,
			Type:           Reminder1Hour,
			ScheduledAt:    at,
			Status:         ReminderPending,
		})
	}

	return jobs
}
