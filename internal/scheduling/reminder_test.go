package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type reminderFixture struct {
	repo   *fakeRepo
	sender *fakeSender
	clock  *fakeClock
	svc    *ReminderService
}

func newReminderFixture(t *testing.T, now time.Time) *reminderFixture {
	t.Helper()
	repo := newFakeRepo()
	sender := &fakeSender{}
	clock := newFakeClock(now)
	return &reminderFixture{
		repo:   repo,
		sender: sender,
		clock:  clock,
		svc:    NewReminderService(repo, sender, clock, testLogger()),
	}
}

// scheduleConsultation inserts a scheduled consultation with one pending
// reminder of the given type.
func (f *reminderFixture) scheduleConsultation(startAt time.Time, kind ReminderType, recipient string) (uuid.UUID, uuid.UUID) {
	consultationID := uuid.New()
	jobID := uuid.New()

	f.repo.mu.Lock()
	f.repo.consultations[consultationID] = &Consultation{
		ID:              consultationID,
		PatientID:       uuid.New(),
		PractitionerID:  uuid.New(),
		StartAt:         startAt,
		DurationMinutes: ConsultationMinutes,
		MeetingLink:     "https://meet.jit.si/bodywise-test-room",
		Status:          StatusScheduled,
	}
	f.repo.reminders[jobID] = &ReminderJob{
		ID:             jobID,
		ConsultationID: consultationID,
		RecipientEmail: recipient,
		Type:           kind,
		ScheduledAt:    startAt.Add(-24 * time.Hour),
		Status:         ReminderPending,
	}
	f.repo.mu.Unlock()

	return consultationID, jobID
}

func TestScan24HourWindow(t *testing.T) {
	now := monday.Add(9 * time.Hour)
	f := newReminderFixture(t, now)
	ctx := context.Background()

	f.scheduleConsultation(now.Add(24*time.Hour), Reminder24Hour, "in@example.test")
	f.scheduleConsultation(now.Add(23*time.Hour), Reminder24Hour, "edge@example.test")
	f.scheduleConsultation(now.Add(22*time.Hour), Reminder24Hour, "early@example.test")
	f.scheduleConsultation(now.Add(26*time.Hour), Reminder24Hour, "late@example.test")

	result, err := f.svc.RunScan(ctx, Scan24Hour)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Matched != 2 || result.Sent != 2 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 2 matched and sent", result)
	}
	if f.sender.sentTo("in@example.test") != 1 || f.sender.sentTo("edge@example.test") != 1 {
		t.Error("in-window recipients not notified")
	}
	if f.sender.sentTo("early@example.test") != 0 || f.sender.sentTo("late@example.test") != 0 {
		t.Error("out-of-window recipients were notified")
	}
}

func TestScan1HourWindow(t *testing.T) {
	now := monday.Add(9 * time.Hour)
	f := newReminderFixture(t, now)
	ctx := context.Background()

	f.scheduleConsultation(now.Add(60*time.Minute), Reminder1Hour, "in@example.test")
	f.scheduleConsultation(now.Add(50*time.Minute), Reminder1Hour, "early@example.test")
	f.scheduleConsultation(now.Add(70*time.Minute), Reminder1Hour, "late@example.test")

	result, err := f.svc.RunScan(ctx, Scan1Hour)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Sent != 1 {
		t.Fatalf("sent = %d, want 1", result.Sent)
	}
	if f.sender.sentTo("in@example.test") != 1 {
		t.Error("in-window recipient not notified")
	}
}

func TestScanIsExactlyOnce(t *testing.T) {
	now := monday.Add(9 * time.Hour)
	f := newReminderFixture(t, now)
	ctx := context.Background()

	f.scheduleConsultation(now.Add(24*time.Hour), Reminder24Hour, "once@example.test")

	if _, err := f.svc.RunScan(ctx, Scan24Hour); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	// An immediate rerun over the unchanged set is a no-op.
	result, err := f.svc.RunScan(ctx, Scan24Hour)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if result.Matched != 0 || result.Sent != 0 {
		t.Fatalf("rerun result = %+v, want nothing matched", result)
	}
	if n := f.sender.sentTo("once@example.test"); n != 1 {
		t.Fatalf("emails = %d, want exactly 1", n)
	}
}

func TestScanMarksFailures(t *testing.T) {
	now := monday.Add(9 * time.Hour)
	f := newReminderFixture(t, now)
	ctx := context.Background()

	_, jobID := f.scheduleConsultation(now.Add(24*time.Hour), Reminder24Hour, "down@example.test")
	f.sender.err = errSendFailed

	result, err := f.svc.RunScan(ctx, Scan24Hour)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Failed != 1 || result.Sent != 0 {
		t.Fatalf("result = %+v, want 1 failed", result)
	}

	f.repo.mu.Lock()
	job := f.repo.reminders[jobID]
	f.repo.mu.Unlock()
	if job.Status != ReminderFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != errSendFailed.Error() {
		t.Errorf("error message = %v, want %q", job.ErrorMessage, errSendFailed)
	}

	// Failed jobs are not picked up again.
	f.sender.err = nil
	rerun, err := f.svc.RunScan(ctx, Scan24Hour)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if rerun.Matched != 0 {
		t.Fatalf("rerun matched %d failed jobs", rerun.Matched)
	}
}

func TestScanSkipsCancelledConsultations(t *testing.T) {
	now := monday.Add(9 * time.Hour)
	f := newReminderFixture(t, now)
	ctx := context.Background()

	consultationID, _ := f.scheduleConsultation(now.Add(24*time.Hour), Reminder24Hour, "gone@example.test")
	f.repo.mu.Lock()
	f.repo.consultations[consultationID].Status = StatusCancelled
	f.repo.mu.Unlock()

	result, err := f.svc.RunScan(ctx, Scan24Hour)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Matched != 0 {
		t.Fatalf("matched = %d, want 0", result.Matched)
	}
	if f.sender.count() != 0 {
		t.Error("cancelled consultation was reminded")
	}
}

func TestScanUnknownKind(t *testing.T) {
	f := newReminderFixture(t, monday)
	if _, err := f.svc.RunScan(context.Background(), ReminderScanKind("weekly")); err == nil {
		t.Fatal("expected error for unknown scan kind")
	}
}
