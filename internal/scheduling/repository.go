package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrSlotNotFound         = errors.New("slot not found")
	ErrConsultationNotFound = errors.New("consultation not found")
	ErrInvitationNotFound   = errors.New("invitation not found")
	ErrAvailabilityNotFound = errors.New("recurring availability not found")
)

// ReserveSlotParams carries one atomic slot booking: the conditional flip of
// the slot, the consultation insert and the reminder job inserts commit or
// roll back together.
type ReserveSlotParams struct {
	ConsultationID  uuid.UUID
	SlotID          uuid.UUID
	PatientID       uuid.UUID
	PractitionerID  uuid.UUID
	StartAt         time.Time
	DurationMinutes int
	MeetingLink     string
	RoomID          string
	Notes           *string
	DailyCap        int
	Reminders       []ReminderJob
}

// ReserveAdHocParams is the legacy booking path without a slot row. The
// overlap check against active consultations runs inside the transaction.
type ReserveAdHocParams struct {
	ConsultationID  uuid.UUID
	PatientID       uuid.UUID
	PractitionerID  uuid.UUID
	StartAt         time.Time
	DurationMinutes int
	MeetingLink     string
	RoomID          string
	Notes           *string
	DailyCap        int
	Reminders       []ReminderJob
}

// AcceptInvitationParams books the earliest free slot on behalf of the
// invited patient. BuildReminders is invoked with the chosen slot's start
// time so the jobs can be inserted in the same transaction.
type AcceptInvitationParams struct {
	InvitationID    uuid.UUID
	ConsultationID  uuid.UUID
	PatientID       uuid.UUID
	PractitionerID  uuid.UUID
	FromDate        time.Time
	DurationMinutes int
	MeetingLink     string
	RoomID          string
	DailyCap        int
	RespondedAt     time.Time
	BuildReminders  func(startAt time.Time) []ReminderJob
}

// DueReminder is a pending reminder job hydrated with the consultation
// fields the email needs.
type DueReminder struct {
	Job               ReminderJob
	ConsultationStart time.Time
	MeetingLink       string
}

// Repository contains all DB interactions needed by the services.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByEmail(ctx context.Context, email string) (*Patient, error)
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)

	CreateRecurringAvailability(ctx context.Context, ra *RecurringAvailability) error
	ListRecurringAvailability(ctx context.Context, practitionerID uuid.UUID) ([]RecurringAvailability, error)
	// DeleteRecurringAvailability removes the template when it belongs to the
	// practitioner; ErrAvailabilityNotFound otherwise.
	DeleteRecurringAvailability(ctx context.Context, practitionerID, id uuid.UUID) error

	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlots(ctx context.Context, practitionerID uuid.UUID, from, to time.Time, freeOnly bool) ([]Slot, error)
	InsertSlots(ctx context.Context, slots []Slot) error
	// DeleteSlot deletes an unbooked slot; ErrSlotAlreadyBooked when booked.
	DeleteSlot(ctx context.Context, practitionerID, id uuid.UUID) error

	GetConsultationByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	ListConsultationsByPatient(ctx context.Context, patientID uuid.UUID, status *ConsultationStatus) ([]Consultation, error)
	ListConsultationsByPractitioner(ctx context.Context, practitionerID uuid.UUID, status *ConsultationStatus) ([]Consultation, error)
	CountActiveConsultations(ctx context.Context, patientID uuid.UUID, day time.Time) (int, error)
	// UpdateConsultationStatus transitions status from -> to conditionally;
	// ErrConsultationNotFound when no row matched.
	UpdateConsultationStatus(ctx context.Context, id uuid.UUID, from, to ConsultationStatus) (*Consultation, error)

	// Atomic reservation primitives. Every conditional update checks the
	// affected-row count and aborts the transaction on a miss.
	ReserveSlot(ctx context.Context, p ReserveSlotParams) (*Consultation, error)
	ReserveAdHoc(ctx context.Context, p ReserveAdHocParams) (*Consultation, error)
	// CancelConsultation sets status to cancelled, frees the slot when one is
	// referenced and cancels pending reminder jobs, all in one transaction.
	CancelConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error)
	AcceptInvitation(ctx context.Context, p AcceptInvitationParams) (*Consultation, error)

	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitationByID(ctx context.Context, id uuid.UUID) (*Invitation, error)
	ListInvitationsBySender(ctx context.Context, patientID uuid.UUID) ([]Invitation, error)
	ListInvitationsByRecipient(ctx context.Context, patientID uuid.UUID) ([]Invitation, error)
	// DeclineInvitation transitions pending -> declined conditionally.
	DeclineInvitation(ctx context.Context, id uuid.UUID, respondedAt time.Time) error

	InsertReminderJob(ctx context.Context, job *ReminderJob) error
	ListReminderJobs(ctx context.Context, consultationID uuid.UUID) ([]ReminderJob, error)
	// ListDueReminders returns pending jobs of the given type whose
	// consultation is still live and starts inside [windowStart, windowEnd].
	ListDueReminders(ctx context.Context, kind ReminderType, windowStart, windowEnd time.Time) ([]DueReminder, error)
	// UpdateReminderStatus transitions status from -> to conditionally; a miss
	// is reported so a lost race with another scan can be detected.
	UpdateReminderStatus(ctx context.Context, id uuid.UUID, from, to ReminderStatus, errMsg *string) (bool, error)
}
