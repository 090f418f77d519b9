package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ReminderScanKind selects which periodic scan to run.
type ReminderScanKind string

const (
	Scan24Hour ReminderScanKind = "24hr"
	Scan1Hour  ReminderScanKind = "1hr"
)

// ScanResult summarizes one reminder scan.
type ScanResult struct {
	Matched int
	Sent    int
	Failed  int
}

// ReminderService runs the periodic 24h/1h scans. It keeps no state between
// invocations; the persisted job status is the only double-send guard, so
// overlapping or repeated scans over an unchanged set dispatch each reminder
// at most once.
type ReminderService struct {
	repo   Repository
	sender EmailSender
	clock  Clock
	log    *logrus.Logger
}

func NewReminderService(repo Repository, sender EmailSender, clock Clock, log *logrus.Logger) *ReminderService {
	return &ReminderService{
		repo:   repo,
		sender: sender,
		clock:  clock,
		log:    log,
	}
}

// RunScan selects pending jobs whose consultation starts inside the kind's
// window and dispatches them. The windows are wide on purpose: they absorb
// cron jitter, and the sent flag, not time precision, prevents duplicates.
func (s *ReminderService) RunScan(ctx context.Context, kind ReminderScanKind) (ScanResult, error) {
	now := s.clock.Now()

	var reminderType ReminderType
	var windowStart, windowEnd time.Time
	switch kind {
	case Scan24Hour:
		reminderType = Reminder24Hour
		windowStart = now.Add(23 * time.Hour)
		windowEnd = now.Add(25 * time.Hour)
	case Scan1Hour:
		reminderType = Reminder1Hour
		windowStart = now.Add(55 * time.Minute)
		windowEnd = now.Add(65 * time.Minute)
	default:
		return ScanResult{}, fmt.Errorf("unknown scan kind %q", kind)
	}

	due, err := s.repo.ListDueReminders(ctx, reminderType, windowStart, windowEnd)
	if err != nil {
		return ScanResult{}, fmt.Errorf("list due reminders: %w", err)
	}

	result := ScanResult{Matched: len(due)}
	for _, d := range due {
		subject, body := reminderEmail(d.Job.Type, d.ConsultationStart, d.MeetingLink)
		if err := s.sender.Send(ctx, d.Job.RecipientEmail, subject, body); err != nil {
			result.Failed++
			s.log.WithError(err).WithFields(logrus.Fields{
				"job_id":          d.Job.ID,
				"consultation_id": d.Job.ConsultationID,
				"recipient":       d.Job.RecipientEmail,
				"type":            d.Job.Type,
			}).Error("reminder dispatch failed")
			msg := err.Error()
			if _, uerr := s.repo.UpdateReminderStatus(ctx, d.Job.ID, ReminderPending, ReminderFailed, &msg); uerr != nil {
				s.log.WithError(uerr).Error("mark reminder failed")
			}
			continue
		}

		updated, err := s.repo.UpdateReminderStatus(ctx, d.Job.ID, ReminderPending, ReminderSent, nil)
		if err != nil {
			return result, fmt.Errorf("mark reminder sent: %w", err)
		}
		if !updated {
			// Another scan got here first; nothing more to do for this job.
			s.log.WithField("job_id", d.Job.ID).Warn("reminder already resolved by a concurrent scan")
			continue
		}
		result.Sent++
	}

	s.log.WithFields(logrus.Fields{
		"kind":    kind,
		"matched": result.Matched,
		"sent":    result.Sent,
		"failed":  result.Failed,
	}).Info("reminder scan complete")

	return result, nil
}

// dispatchConfirmations sends the confirmation jobs synchronously right
// after a booking commits. A send failure marks that job failed and is never
// fatal to the booking.
func dispatchConfirmations(ctx context.Context, repo Repository, sender EmailSender, log *logrus.Logger, c *Consultation, jobs []ReminderJob) {
	for _, job := range jobs {
		if job.Type != ReminderConfirmation {
			continue
		}
		subject, body := reminderEmail(job.Type, c.StartAt, c.MeetingLink)
		if err := sender.Send(ctx, job.RecipientEmail, subject, body); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"consultation_id": c.ID,
				"recipient":       job.RecipientEmail,
			}).Error("confirmation email failed")
			msg := err.Error()
			if _, uerr := repo.UpdateReminderStatus(ctx, job.ID, ReminderPending, ReminderFailed, &msg); uerr != nil {
				log.WithError(uerr).Error("mark confirmation failed")
			}
			continue
		}
		if _, err := repo.UpdateReminderStatus(ctx, job.ID, ReminderPending, ReminderSent, nil); err != nil {
			log.WithError(err).Error("mark confirmation sent")
		}
	}
}

func reminderEmail(kind ReminderType, startAt time.Time, meetingLink string) (subject, body string) {
	when := startAt.Format("Monday, January 2 at 15:04")
	switch kind {
	case ReminderConfirmation:
		subject = "Your consultation is booked"
		body = fmt.Sprintf("Your consultation is confirmed for %s.\n\nJoin here: %s", when, meetingLink)
	case Reminder24Hour:
		subject = "Consultation reminder: tomorrow"
		body = fmt.Sprintf("Your consultation is tomorrow, %s.\n\nJoin here: %s", when, meetingLink)
	case Reminder1Hour:
		subject = "Consultation reminder: starting soon"
		body = fmt.Sprintf("Your consultation starts at %s.\n\nJoin here: %s", startAt.Format("15:04"), meetingLink)
	default:
		subject = "Consultation update"
		body = fmt.Sprintf("Consultation on %s.\n\nJoin here: %s", when, meetingLink)
	}
	return subject, body
}

func inviteEmail(senderName, practitionerName string, message *string) (subject, body string) {
	subject = fmt.Sprintf("%s invited you to a consultation", senderName)
	body = fmt.Sprintf("%s has invited you to book a consultation with %s.", senderName, practitionerName)
	if message != nil && *message != "" {
		body += "\n\n" + *message
	}
	body += "\n\nAccept the invitation from your dashboard to book the earliest available time."
	return subject, body
}
