package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type ConsultationStatus string

const (
	StatusScheduled ConsultationStatus = "scheduled"
	StatusConfirmed ConsultationStatus = "confirmed"
	StatusCompleted ConsultationStatus = "completed"
	StatusCancelled ConsultationStatus = "cancelled"
)

type InvitationStatus string

const (
	InvitePending  InvitationStatus = "pending"
	InviteAccepted InvitationStatus = "accepted"
	InviteDeclined InvitationStatus = "declined"
)

type ReminderType string

const (
	ReminderConfirmation ReminderType = "confirmation"
	Reminder24Hour       ReminderType = "24hr"
	Reminder1Hour        ReminderType = "1hr"
	ReminderInvite       ReminderType = "invite"
)

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderFailed    ReminderStatus = "failed"
	ReminderCancelled ReminderStatus = "cancelled"
)

const (
	// SlotGranularity is the fixed size of every materialized slot and of a
	// consultation.
	SlotGranularity = 30 * time.Minute

	ConsultationMinutes = 30

	// DailyConsultationCap limits active consultations per patient per day.
	DailyConsultationCap = 2
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Practitioner struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecurringAvailability is a weekly template slots are materialized from.
type RecurringAvailability struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	DayOfWeek      time.Weekday
	StartTime      TimeOfDay
	EndTime        TimeOfDay
	CreatedAt      time.Time
}

// Slot is one concrete bookable unit. Unique per (practitioner, start_at).
type Slot struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	StartAt        time.Time
	EndAt          time.Time
	Booked         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Date returns the slot's calendar day at midnight.
func (s Slot) Date() time.Time {
	y, m, d := s.StartAt.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.StartAt.Location())
}

type Consultation struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	PractitionerID  uuid.UUID
	SlotID          *uuid.UUID // nil for legacy ad-hoc bookings
	StartAt         time.Time
	DurationMinutes int
	MeetingLink     string
	RoomID          string
	Status          ConsultationStatus
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c Consultation) EndAt() time.Time {
	return c.StartAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

type Invitation struct {
	ID                 uuid.UUID
	SenderPatientID    uuid.UUID
	RecipientPatientID uuid.UUID
	PractitionerID     uuid.UUID
	ConsultationID     *uuid.UUID // set once accepted
	Message            *string
	Status             InvitationStatus
	CreatedAt          time.Time
	RespondedAt        *time.Time
}

type ReminderJob struct {
	ID             uuid.UUID
	ConsultationID uuid.UUID
	RecipientEmail string
	Type           ReminderType
	ScheduledAt    time.Time
	Status         ReminderStatus
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SlotConflict reports a candidate that overlapped an existing slot during
// materialization.
type SlotConflict struct {
	StartAt time.Time
	EndAt   time.Time
}

// overlaps reports whether the half-open ranges [s1,e1) and [s2,e2) intersect.
func overlaps(s1, e1, s2, e2 time.Time) bool {
	return !(e1.Compare(s2) <= 0 || s1.Compare(e2) >= 0)
}
