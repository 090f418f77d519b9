package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/bodywise/scheduling-service/internal/redis"
	"github.com/bodywise/scheduling-service/internal/scheduling"
)

const dateLayout = "2006-01-02"

// Availability

func createRecurringHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		var req CreateRecurringRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		start, err := scheduling.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}
		end, err := scheduling.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
			return
		}

		ra, err := svc.CreateRecurring(r.Context(), id.UserID, time.Weekday(req.DayOfWeek), start, end)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRecurringResponse(ra))
	}
}

func listRecurringHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		schedules, err := svc.ListRecurring(r.Context(), id.UserID)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		out := make([]RecurringResponse, 0, len(schedules))
		for i := range schedules {
			out = append(out, toRecurringResponse(&schedules[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func deleteRecurringHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteRecurring(r.Context(), id.UserID, scheduleID); err != nil {
			handleAvailabilityError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createSlotsHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		var req CreateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		day, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := scheduling.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}
		end, err := scheduling.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
			return
		}

		created, conflicts, err := svc.CreateSlots(r.Context(), id.UserID, day, start, end)
		if err != nil {
			if errors.Is(err, scheduling.ErrSlotOverlap) {
				writeJSON(w, http.StatusConflict, SlotsCreatedResponse{
					Created:   toSlotResponses(nil),
					Conflicts: toConflictResponses(conflicts),
				})
				return
			}
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, SlotsCreatedResponse{
			Created:   toSlotResponses(created),
			Conflicts: toConflictResponses(conflicts),
		})
	}
}

func materializeSlotsHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		var req MaterializeRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		var from, to time.Time
		var err error
		if req.From != "" {
			from, err = time.Parse(dateLayout, req.From)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
		}
		if req.To != "" {
			to, err = time.Parse(dateLayout, req.To)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
		}

		created, conflicts, err := svc.MaterializeSlots(r.Context(), id.UserID, from, to)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, SlotsCreatedResponse{
			Created:   toSlotResponses(created),
			Conflicts: toConflictResponses(conflicts),
		})
	}
}

func deleteSlotHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteSlot(r.Context(), id.UserID, slotID); err != nil {
			handleAvailabilityError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listPractitionerSlotsHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()
		from, err := time.Parse(dateLayout, q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		var to time.Time
		if q.Get("to") == "" {
			to = from.AddDate(0, 0, 1)
		} else {
			to, err = time.Parse(dateLayout, q.Get("to"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
			to = to.AddDate(0, 0, 1)
		}
		freeOnly := q.Get("free") == "true"

		slots, err := svc.ListSlots(r.Context(), practitionerID, from, to, freeOnly)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

// Consultations

func bookConsultationHandler(engine *scheduling.BookingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		var req BookConsultationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}
		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		c, err := engine.Book(r.Context(), id.UserID, practitionerID, slotID, req.Notes)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toConsultationResponse(c))
	}
}

func bookAdHocHandler(engine *scheduling.BookingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		var req BookAdHocRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		startAt, err := time.Parse(time.RFC3339, req.StartAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_at", "start_at must be RFC 3339")
			return
		}

		c, err := engine.BookAdHoc(r.Context(), id.UserID, practitionerID, startAt, req.Notes)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toConsultationResponse(c))
	}
}

func listConsultationsHandler(engine *scheduling.BookingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		var status *scheduling.ConsultationStatus
		if s := r.URL.Query().Get("status"); s != "" {
			cs := scheduling.ConsultationStatus(s)
			status = &cs
		}

		var (
			consultations []scheduling.Consultation
			err           error
		)
		if id.Role == RolePractitioner {
			consultations, err = engine.ListByPractitioner(r.Context(), id.UserID, status)
		} else {
			consultations, err = engine.ListByPatient(r.Context(), id.UserID, status)
		}
		if err != nil {
			handleBookingError(w, err)
			return
		}

		out := make([]ConsultationResponse, 0, len(consultations))
		for i := range consultations {
			out = append(out, toConsultationResponse(&consultations[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getConsultationHandler(engine *scheduling.BookingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		consultationID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
			return
		}

		c, err := engine.Get(r.Context(), consultationID, id.UserID)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func confirmConsultationHandler(engine *scheduling.BookingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		consultationID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
			return
		}

		c, err := engine.Confirm(r.Context(), consultationID, id.UserID)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func cancelConsultationHandler(engine *scheduling.BookingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		consultationID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
			return
		}

		if err := engine.Cancel(r.Context(), consultationID, id.UserID); err != nil {
			handleBookingError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Invitations

func createInvitationHandler(svc *scheduling.InvitationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		var req CreateInvitationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		inv, err := svc.Invite(r.Context(), id.UserID, req.RecipientEmail, practitionerID, req.Message)
		if err != nil {
			handleInvitationError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toInvitationResponse(inv))
	}
}

func listInvitationsHandler(svc *scheduling.InvitationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		box := scheduling.InvitationBox(r.URL.Query().Get("box"))
		if box == "" {
			box = scheduling.BoxAll
		}

		invitations, err := svc.List(r.Context(), id.UserID, box)
		if err != nil {
			handleInvitationError(w, err)
			return
		}

		out := make([]InvitationResponse, 0, len(invitations))
		for i := range invitations {
			out = append(out, toInvitationResponse(&invitations[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func respondInvitationHandler(svc *scheduling.InvitationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		invitationID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_invitation_id", "id must be a valid UUID")
			return
		}

		var req RespondInvitationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		switch req.Action {
		case "accept":
			c, err := svc.Accept(r.Context(), invitationID, id.UserID)
			if err != nil {
				handleInvitationError(w, err)
				return
			}
			resp := toConsultationResponse(c)
			writeJSON(w, http.StatusOK, RespondInvitationResponse{Status: "accepted", Consultation: &resp})
		case "decline":
			if err := svc.Decline(r.Context(), invitationID, id.UserID); err != nil {
				handleInvitationError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, RespondInvitationResponse{Status: "declined"})
		default:
			writeError(w, http.StatusBadRequest, "invalid_action", "action must be accept or decline")
		}
	}
}

// Error mapping

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAvailabilityNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, scheduling.ErrInvalidDayOfWeek):
		writeError(w, http.StatusBadRequest, "invalid_day_of_week", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTimeRange):
		writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
	case errors.Is(err, scheduling.ErrScheduleOverlap):
		writeError(w, http.StatusConflict, "schedule_overlap", err.Error())
	case errors.Is(err, scheduling.ErrSlotOverlap):
		writeError(w, http.StatusConflict, "slot_overlap", err.Error())
	case errors.Is(err, scheduling.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, scheduling.ErrConsultationNotFound):
		writeError(w, http.StatusNotFound, "consultation_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, scheduling.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrTimeConflict):
		writeError(w, http.StatusConflict, "time_conflict", err.Error())
	case errors.Is(err, scheduling.ErrDailyCapExceeded):
		writeError(w, http.StatusConflict, "daily_cap_exceeded", err.Error())
	case errors.Is(err, scheduling.ErrInvalidStartTime):
		writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
	case errors.Is(err, scheduling.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, scheduling.ErrNotCancellable):
		writeError(w, http.StatusConflict, "not_cancellable", err.Error())
	case errors.Is(err, scheduling.ErrMeetingProvision):
		writeError(w, http.StatusBadGateway, "meeting_provision_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleInvitationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, scheduling.ErrInvitationNotFound):
		writeError(w, http.StatusNotFound, "invitation_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSelfInvite):
		writeError(w, http.StatusBadRequest, "self_invite", err.Error())
	case errors.Is(err, scheduling.ErrAlreadyResponded):
		writeError(w, http.StatusConflict, "already_responded", err.Error())
	case errors.Is(err, scheduling.ErrNoFreeSlots):
		writeError(w, http.StatusConflict, "no_free_slots", "no free slots available, invitation remains pending")
	case errors.Is(err, scheduling.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "invitation_being_resolved", "invitation is being resolved, please retry shortly")
	case errors.Is(err, scheduling.ErrDailyCapExceeded):
		writeError(w, http.StatusConflict, "daily_cap_exceeded", err.Error())
	case errors.Is(err, scheduling.ErrMeetingProvision):
		writeError(w, http.StatusBadGateway, "meeting_provision_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
