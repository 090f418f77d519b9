package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/bodywise/scheduling-service/internal/scheduling"
)

type CreateRecurringRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type RecurringResponse struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	DayOfWeek      int       `json:"day_of_week"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	CreatedAt      time.Time `json:"created_at"`
}

func toRecurringResponse(ra *scheduling.RecurringAvailability) RecurringResponse {
	return RecurringResponse{
		ID:             ra.ID,
		PractitionerID: ra.PractitionerID,
		DayOfWeek:      int(ra.DayOfWeek),
		StartTime:      ra.StartTime.String(),
		EndTime:        ra.EndTime.String(),
		CreatedAt:      ra.CreatedAt,
	}
}

type CreateSlotsRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type MaterializeRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

type SlotResponse struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	Booked         bool      `json:"booked"`
}

func toSlotResponses(slots []scheduling.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			ID:             s.ID,
			PractitionerID: s.PractitionerID,
			StartAt:        s.StartAt,
			EndAt:          s.EndAt,
			Booked:         s.Booked,
		})
	}
	return out
}

type ConflictResponse struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

func toConflictResponses(conflicts []scheduling.SlotConflict) []ConflictResponse {
	out := make([]ConflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, ConflictResponse{StartAt: c.StartAt, EndAt: c.EndAt})
	}
	return out
}

type SlotsCreatedResponse struct {
	Created   []SlotResponse     `json:"created"`
	Conflicts []ConflictResponse `json:"conflicts"`
}

type BookConsultationRequest struct {
	SlotID         string  `json:"slot_id"`
	PractitionerID string  `json:"practitioner_id"`
	Notes          *string `json:"notes,omitempty"`
}

type BookAdHocRequest struct {
	PractitionerID string  `json:"practitioner_id"`
	StartAt        string  `json:"start_at"`
	Notes          *string `json:"notes,omitempty"`
}

type ConsultationResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	PractitionerID  uuid.UUID  `json:"practitioner_id"`
	SlotID          *uuid.UUID `json:"slot_id,omitempty"`
	StartAt         time.Time  `json:"start_at"`
	DurationMinutes int        `json:"duration_minutes"`
	MeetingLink     string     `json:"meeting_link"`
	RoomID          string     `json:"room_id"`
	Status          string     `json:"status"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toConsultationResponse(c *scheduling.Consultation) ConsultationResponse {
	return ConsultationResponse{
		ID:              c.ID,
		PatientID:       c.PatientID,
		PractitionerID:  c.PractitionerID,
		SlotID:          c.SlotID,
		StartAt:         c.StartAt,
		DurationMinutes: c.DurationMinutes,
		MeetingLink:     c.MeetingLink,
		RoomID:          c.RoomID,
		Status:          string(c.Status),
		Notes:           c.Notes,
		CreatedAt:       c.CreatedAt,
	}
}

type CreateInvitationRequest struct {
	RecipientEmail string  `json:"recipient_email"`
	PractitionerID string  `json:"practitioner_id"`
	Message        *string `json:"message,omitempty"`
}

type RespondInvitationRequest struct {
	Action string `json:"action"`
}

type InvitationResponse struct {
	ID                 uuid.UUID  `json:"id"`
	SenderPatientID    uuid.UUID  `json:"sender_patient_id"`
	RecipientPatientID uuid.UUID  `json:"recipient_patient_id"`
	PractitionerID     uuid.UUID  `json:"practitioner_id"`
	ConsultationID     *uuid.UUID `json:"consultation_id,omitempty"`
	Message            *string    `json:"message,omitempty"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	RespondedAt        *time.Time `json:"responded_at,omitempty"`
}

func toInvitationResponse(inv *scheduling.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:                 inv.ID,
		SenderPatientID:    inv.SenderPatientID,
		RecipientPatientID: inv.RecipientPatientID,
		PractitionerID:     inv.PractitionerID,
		ConsultationID:     inv.ConsultationID,
		Message:            inv.Message,
		Status:             string(inv.Status),
		CreatedAt:          inv.CreatedAt,
		RespondedAt:        inv.RespondedAt,
	}
}

type RespondInvitationResponse struct {
	Status       string                `json:"status"`
	Consultation *ConsultationResponse `json:"consultation,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
