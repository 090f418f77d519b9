package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PgRepository)(nil)

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.PractitionerID, &s.StartAt, &s.EndAt, &s.Booked, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(
		&c.ID,
		&c.PatientID,
		&c.PractitionerID,
		&c.SlotID,
		&c.StartAt,
		&c.DurationMinutes,
		&c.MeetingLink,
		&c.RoomID,
		&c.Status,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(
		&inv.ID,
		&inv.SenderPatientID,
		&inv.RecipientPatientID,
		&inv.PractitionerID,
		&inv.ConsultationID,
		&inv.Message,
		&inv.Status,
		&inv.CreatedAt,
		&inv.RespondedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}
	return &inv, nil
}

const consultationCols = `id, patient_id, practitioner_id, slot_id, start_at, duration_minutes, meeting_link, room_id, status, notes, created_at, updated_at`

const invitationCols = `id, sender_patient_id, recipient_patient_id, practitioner_id, consultation_id, message, status, created_at, responded_at`

// Patients and practitioners

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByEmail(ctx context.Context, email string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE email = $1
	`, email)
	return scanPatient(row)
}

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, email, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

// Recurring availability

func (r *PgRepository) CreateRecurringAvailability(ctx context.Context, ra *RecurringAvailability) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO recurring_availability (id, practitioner_id, day_of_week, start_minute, end_minute, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`, ra.ID, ra.PractitionerID, int(ra.DayOfWeek), int(ra.StartTime), int(ra.EndTime))
	if err := row.Scan(&ra.CreatedAt); err != nil {
		return fmt.Errorf("insert recurring availability: %w", err)
	}
	return nil
}

func (r *PgRepository) ListRecurringAvailability(ctx context.Context, practitionerID uuid.UUID) ([]RecurringAvailability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, day_of_week, start_minute, end_minute, created_at
		FROM recurring_availability
		WHERE practitioner_id = $1
		ORDER BY day_of_week, start_minute
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RecurringAvailability
	for rows.Next() {
		var ra RecurringAvailability
		var day, startMin, endMin int
		if err := rows.Scan(&ra.ID, &ra.PractitionerID, &day, &startMin, &endMin, &ra.CreatedAt); err != nil {
			return nil, err
		}
		ra.DayOfWeek = time.Weekday(day)
		ra.StartTime = TimeOfDay(startMin)
		ra.EndTime = TimeOfDay(endMin)
		result = append(result, ra)
	}
	return result, rows.Err()
}

func (r *PgRepository) DeleteRecurringAvailability(ctx context.Context, practitionerID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM recurring_availability
		WHERE id = $1 AND practitioner_id = $2
	`, id, practitionerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAvailabilityNotFound
	}
	return nil
}

// Slots

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, practitioner_id, start_at, end_at, booked, created_at, updated_at
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, practitionerID uuid.UUID, from, to time.Time, freeOnly bool) ([]Slot, error) {
	query := `
		SELECT id, practitioner_id, start_at, end_at, booked, created_at, updated_at
		FROM slots
		WHERE practitioner_id = $1 AND start_at >= $2 AND start_at < $3
	`
	if freeOnly {
		query += ` AND NOT booked`
	}
	query += ` ORDER BY start_at`

	rows, err := r.pool.Query(ctx, query, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertSlots(ctx context.Context, slots []Slot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := range slots {
		row := tx.QueryRow(ctx, `
			INSERT INTO slots (id, practitioner_id, start_at, end_at, booked, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, now(), now())
			RETURNING created_at, updated_at
		`, slots[i].ID, slots[i].PractitionerID, slots[i].StartAt, slots[i].EndAt)
		if err := row.Scan(&slots[i].CreatedAt, &slots[i].UpdatedAt); err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, practitionerID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1 AND practitioner_id = $2 AND NOT booked
	`, id, practitionerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var booked bool
		err := r.pool.QueryRow(ctx, `
			SELECT booked FROM slots WHERE id = $1 AND practitioner_id = $2
		`, id, practitionerID).Scan(&booked)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotNotFound
		}
		if err != nil {
			return err
		}
		return ErrSlotAlreadyBooked
	}
	return nil
}

// Consultations

func (r *PgRepository) GetConsultationByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+consultationCols+`
		FROM consultations
		WHERE id = $1
	`, id)
	return scanConsultation(row)
}

func (r *PgRepository) listConsultations(ctx context.Context, column string, ownerID uuid.UUID, status *ConsultationStatus) ([]Consultation, error) {
	query := `
		SELECT ` + consultationCols + `
		FROM consultations
		WHERE ` + column + ` = $1
	`
	args := []any{ownerID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY start_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListConsultationsByPatient(ctx context.Context, patientID uuid.UUID, status *ConsultationStatus) ([]Consultation, error) {
	return r.listConsultations(ctx, "patient_id", patientID, status)
}

func (r *PgRepository) ListConsultationsByPractitioner(ctx context.Context, practitionerID uuid.UUID, status *ConsultationStatus) ([]Consultation, error) {
	return r.listConsultations(ctx, "practitioner_id", practitionerID, status)
}

func (r *PgRepository) CountActiveConsultations(ctx context.Context, patientID uuid.UUID, day time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM consultations
		WHERE patient_id = $1
		  AND status <> 'cancelled'
		  AND start_at >= $2 AND start_at < $3
	`, patientID, day, day.AddDate(0, 0, 1)).Scan(&count)
	return count, err
}

func (r *PgRepository) UpdateConsultationStatus(ctx context.Context, id uuid.UUID, from, to ConsultationStatus) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+consultationCols+`
	`, id, to, from)
	return scanConsultation(row)
}

// Atomic reservation primitives

func (r *PgRepository) ReserveSlot(ctx context.Context, p ReserveSlotParams) (*Consultation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// The conditional flip is the linearization point: exactly one caller
	// sees an affected-row count of 1.
	tag, err := tx.Exec(ctx, `
		UPDATE slots
		SET booked = TRUE,
		    updated_at = now()
		WHERE id = $1 AND booked = FALSE
	`, p.SlotID)
	if err != nil {
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, p.SlotID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrSlotNotFound
		}
		return nil, ErrSlotAlreadyBooked
	}

	if err := checkDailyCap(ctx, tx, p.PatientID, p.StartAt, p.DailyCap); err != nil {
		return nil, err
	}

	created, err := insertConsultation(ctx, tx, p.ConsultationID, p.PatientID, p.PractitionerID, &p.SlotID, p.StartAt, p.DurationMinutes, p.MeetingLink, p.RoomID, p.Notes)
	if err != nil {
		return nil, err
	}

	if err := insertReminderJobs(ctx, tx, p.Reminders); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) ReserveAdHoc(ctx context.Context, p ReserveAdHocParams) (*Consultation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	endAt := p.StartAt.Add(time.Duration(p.DurationMinutes) * time.Minute)

	var conflict bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM consultations
			WHERE practitioner_id = $1
			  AND status <> 'cancelled'
			  AND start_at < $3
			  AND start_at + duration_minutes * interval '1 minute' > $2
		)
	`, p.PractitionerID, p.StartAt, endAt).Scan(&conflict)
	if err != nil {
		return nil, fmt.Errorf("check time conflict: %w", err)
	}
	if conflict {
		return nil, ErrTimeConflict
	}

	if err := checkDailyCap(ctx, tx, p.PatientID, p.StartAt, p.DailyCap); err != nil {
		return nil, err
	}

	created, err := insertConsultation(ctx, tx, p.ConsultationID, p.PatientID, p.PractitionerID, nil, p.StartAt, p.DurationMinutes, p.MeetingLink, p.RoomID, p.Notes)
	if err != nil {
		return nil, err
	}

	if err := insertReminderJobs(ctx, tx, p.Reminders); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) CancelConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE consultations
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('scheduled', 'confirmed')
		RETURNING `+consultationCols+`
	`, id)
	cancelled, err := scanConsultation(row)
	if err != nil {
		if !errors.Is(err, ErrConsultationNotFound) {
			return nil, err
		}
		var status ConsultationStatus
		serr := tx.QueryRow(ctx, `SELECT status FROM consultations WHERE id = $1`, id).Scan(&status)
		if errors.Is(serr, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		if serr != nil {
			return nil, serr
		}
		if status == StatusCancelled {
			return nil, ErrAlreadyCancelled
		}
		return nil, ErrNotCancellable
	}

	if cancelled.SlotID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE slots
			SET booked = FALSE,
			    updated_at = now()
			WHERE id = $1
		`, *cancelled.SlotID); err != nil {
			return nil, fmt.Errorf("free slot: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'cancelled',
		    error_message = 'consultation cancelled',
		    updated_at = now()
		WHERE consultation_id = $1 AND status = 'pending'
	`, id); err != nil {
		return nil, fmt.Errorf("cancel pending reminders: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (r *PgRepository) AcceptInvitation(ctx context.Context, p AcceptInvitationParams) (*Consultation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Pending is a single-use gate: flip it before any booking side effect.
	tag, err := tx.Exec(ctx, `
		UPDATE invitations
		SET status = 'accepted',
		    responded_at = $2
		WHERE id = $1 AND status = 'pending'
	`, p.InvitationID, p.RespondedAt)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invitations WHERE id = $1)`, p.InvitationID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrInvitationNotFound
		}
		return nil, ErrAlreadyResponded
	}

	var slotID uuid.UUID
	var startAt, endAt time.Time
	err = tx.QueryRow(ctx, `
		SELECT id, start_at, end_at
		FROM slots
		WHERE practitioner_id = $1
		  AND NOT booked
		  AND start_at >= $2
		ORDER BY start_at
		LIMIT 1
		FOR UPDATE
	`, p.PractitionerID, p.FromDate).Scan(&slotID, &startAt, &endAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Rolling back also undoes the status flip, so the invitation stays
		// pending and can be retried once slots exist.
		return nil, ErrNoFreeSlots
	}
	if err != nil {
		return nil, fmt.Errorf("find free slot: %w", err)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE slots
		SET booked = TRUE,
		    updated_at = now()
		WHERE id = $1 AND booked = FALSE
	`, slotID)
	if err != nil {
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrSlotAlreadyBooked
	}

	if err := checkDailyCap(ctx, tx, p.PatientID, startAt, p.DailyCap); err != nil {
		return nil, err
	}

	created, err := insertConsultation(ctx, tx, p.ConsultationID, p.PatientID, p.PractitionerID, &slotID, startAt, p.DurationMinutes, p.MeetingLink, p.RoomID, nil)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE invitations
		SET consultation_id = $2
		WHERE id = $1
	`, p.InvitationID, created.ID); err != nil {
		return nil, fmt.Errorf("link consultation: %w", err)
	}

	if err := insertReminderJobs(ctx, tx, p.BuildReminders(startAt)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func checkDailyCap(ctx context.Context, tx pgx.Tx, patientID uuid.UUID, startAt time.Time, cap int) error {
	y, m, d := startAt.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, startAt.Location())

	var count int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM consultations
		WHERE patient_id = $1
		  AND status <> 'cancelled'
		  AND start_at >= $2 AND start_at < $3
	`, patientID, day, day.AddDate(0, 0, 1)).Scan(&count)
	if err != nil {
		return fmt.Errorf("count consultations: %w", err)
	}
	if count >= cap {
		return ErrDailyCapExceeded
	}
	return nil
}

func insertConsultation(ctx context.Context, tx pgx.Tx, id, patientID, practitionerID uuid.UUID, slotID *uuid.UUID, startAt time.Time, durationMinutes int, meetingLink, roomID string, notes *string) (*Consultation, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO consultations (id, patient_id, practitioner_id, slot_id, start_at, duration_minutes, meeting_link, room_id, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'scheduled', $9, now(), now())
		RETURNING `+consultationCols+`
	`, id, patientID, practitionerID, slotID, startAt, durationMinutes, meetingLink, roomID, notes)
	c, err := scanConsultation(row)
	if err != nil {
		return nil, fmt.Errorf("insert consultation: %w", err)
	}
	return c, nil
}

func insertReminderJobs(ctx context.Context, tx pgx.Tx, jobs []ReminderJob) error {
	for _, job := range jobs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reminder_jobs (id, consultation_id, recipient_email, reminder_type, scheduled_at, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, job.ID, job.ConsultationID, job.RecipientEmail, job.Type, job.ScheduledAt, job.Status); err != nil {
			return fmt.Errorf("insert reminder job: %w", err)
		}
	}
	return nil
}

// Invitations

func (r *PgRepository) CreateInvitation(ctx context.Context, inv *Invitation) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO invitations (id, sender_patient_id, recipient_patient_id, practitioner_id, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at
	`, inv.ID, inv.SenderPatientID, inv.RecipientPatientID, inv.PractitionerID, inv.Message, inv.Status)
	if err := row.Scan(&inv.CreatedAt); err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (r *PgRepository) GetInvitationByID(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+invitationCols+`
		FROM invitations
		WHERE id = $1
	`, id)
	return scanInvitation(row)
}

func (r *PgRepository) listInvitations(ctx context.Context, column string, patientID uuid.UUID) ([]Invitation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invitationCols+`
		FROM invitations
		WHERE `+column+` = $1
		ORDER BY created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListInvitationsBySender(ctx context.Context, patientID uuid.UUID) ([]Invitation, error) {
	return r.listInvitations(ctx, "sender_patient_id", patientID)
}

func (r *PgRepository) ListInvitationsByRecipient(ctx context.Context, patientID uuid.UUID) ([]Invitation, error) {
	return r.listInvitations(ctx, "recipient_patient_id", patientID)
}

func (r *PgRepository) DeclineInvitation(ctx context.Context, id uuid.UUID, respondedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invitations
		SET status = 'declined',
		    responded_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, respondedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invitations WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrInvitationNotFound
		}
		return ErrAlreadyResponded
	}
	return nil
}

// Reminder jobs

func (r *PgRepository) InsertReminderJob(ctx context.Context, job *ReminderJob) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reminder_jobs (id, consultation_id, recipient_email, reminder_type, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, job.ID, job.ConsultationID, job.RecipientEmail, job.Type, job.ScheduledAt, job.Status)
	if err != nil {
		return fmt.Errorf("insert reminder job: %w", err)
	}
	return nil
}

func (r *PgRepository) ListReminderJobs(ctx context.Context, consultationID uuid.UUID) ([]ReminderJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, consultation_id, recipient_email, reminder_type, scheduled_at, status, error_message, created_at, updated_at
		FROM reminder_jobs
		WHERE consultation_id = $1
		ORDER BY created_at
	`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReminderJob
	for rows.Next() {
		var job ReminderJob
		if err := rows.Scan(&job.ID, &job.ConsultationID, &job.RecipientEmail, &job.Type, &job.ScheduledAt, &job.Status, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListDueReminders(ctx context.Context, kind ReminderType, windowStart, windowEnd time.Time) ([]DueReminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.consultation_id, r.recipient_email, r.reminder_type, r.scheduled_at, r.status, r.error_message, r.created_at, r.updated_at,
		       c.start_at, c.meeting_link
		FROM reminder_jobs r
		JOIN consultations c ON c.id = r.consultation_id
		WHERE r.reminder_type = $1
		  AND r.status = 'pending'
		  AND c.status IN ('scheduled', 'confirmed')
		  AND c.start_at >= $2 AND c.start_at <= $3
		ORDER BY c.start_at
	`, kind, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DueReminder
	for rows.Next() {
		var d DueReminder
		if err := rows.Scan(
			&d.Job.ID,
			&d.Job.ConsultationID,
			&d.Job.RecipientEmail,
			&d.Job.Type,
			&d.Job.ScheduledAt,
			&d.Job.Status,
			&d.Job.ErrorMessage,
			&d.Job.CreatedAt,
			&d.Job.UpdatedAt,
			&d.ConsultationStart,
			&d.MeetingLink,
		); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateReminderStatus(ctx context.Context, id uuid.UUID, from, to ReminderStatus, errMsg *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = $2,
		    error_message = $3,
		    updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, to, errMsg, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
