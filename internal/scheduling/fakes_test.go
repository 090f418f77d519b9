package scheduling

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	redisclient "github.com/bodywise/scheduling-service/internal/redis"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testCache() *SlotCache {
	cache, err := NewSlotCache(16)
	if err != nil {
		panic(err)
	}
	return cache
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeLocker serializes callers per key, mirroring the redis lock's mutual
// exclusion without the network.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// busyLocker always reports the lock as held elsewhere.
type busyLocker struct{}

func (busyLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

func (s *fakeSender) sentTo(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.sent {
		if e.To == email {
			n++
		}
	}
	return n
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeProvisioner struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *fakeProvisioner) CreateRoom(context.Context) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", "", p.err
	}
	p.calls++
	room := "bodywise-test-room"
	return room, "https://meet.jit.si/" + room, nil
}

// fakeRepo is an in-memory Repository with the same transactional semantics
// as the Postgres implementation: conditional updates, affected-row checks,
// rollback on reservation failure.
type fakeRepo struct {
	mu            sync.Mutex
	patients      map[uuid.UUID]Patient
	practitioners map[uuid.UUID]Practitioner
	schedules     map[uuid.UUID]RecurringAvailability
	slots         map[uuid.UUID]*Slot
	consultations map[uuid.UUID]*Consultation
	invitations   map[uuid.UUID]*Invitation
	reminders     map[uuid.UUID]*ReminderJob
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		patients:      make(map[uuid.UUID]Patient),
		practitioners: make(map[uuid.UUID]Practitioner),
		schedules:     make(map[uuid.UUID]RecurringAvailability),
		slots:         make(map[uuid.UUID]*Slot),
		consultations: make(map[uuid.UUID]*Consultation),
		invitations:   make(map[uuid.UUID]*Invitation),
		reminders:     make(map[uuid.UUID]*ReminderJob),
	}
}

func (r *fakeRepo) addPatient(name, email string) Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := Patient{ID: uuid.New(), Name: name, Email: email}
	r.patients[p.ID] = p
	return p
}

func (r *fakeRepo) addPractitioner(name, email string) Practitioner {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := Practitioner{ID: uuid.New(), Name: name, Email: email}
	r.practitioners[p.ID] = p
	return p
}

func (r *fakeRepo) addSlot(practitionerID uuid.UUID, startAt time.Time) Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Slot{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		StartAt:        startAt,
		EndAt:          startAt.Add(SlotGranularity),
	}
	r.slots[s.ID] = &s
	return s
}

func (r *fakeRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *fakeRepo) GetPatientByEmail(_ context.Context, email string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.Email == email {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *fakeRepo) GetPractitionerByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (r *fakeRepo) CreateRecurringAvailability(_ context.Context, ra *RecurringAvailability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[ra.ID] = *ra
	return nil
}

func (r *fakeRepo) ListRecurringAvailability(_ context.Context, practitionerID uuid.UUID) ([]RecurringAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecurringAvailability
	for _, ra := range r.schedules {
		if ra.PractitionerID == practitionerID {
			out = append(out, ra)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *fakeRepo) DeleteRecurringAvailability(_ context.Context, practitionerID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ra, ok := r.schedules[id]
	if !ok || ra.PractitionerID != practitionerID {
		return ErrAvailabilityNotFound
	}
	delete(r.schedules, id)
	return nil
}

func (r *fakeRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) ListSlots(_ context.Context, practitionerID uuid.UUID, from, to time.Time, freeOnly bool) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Slot
	for _, s := range r.slots {
		if s.PractitionerID != practitionerID {
			continue
		}
		if s.StartAt.Before(from) || !s.StartAt.Before(to) {
			continue
		}
		if freeOnly && s.Booked {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (r *fakeRepo) InsertSlots(_ context.Context, slots []Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range slots {
		cp := slots[i]
		r.slots[cp.ID] = &cp
	}
	return nil
}

func (r *fakeRepo) DeleteSlot(_ context.Context, practitionerID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.PractitionerID != practitionerID {
		return ErrSlotNotFound
	}
	if s.Booked {
		return ErrSlotAlreadyBooked
	}
	delete(r.slots, id)
	return nil
}

func (r *fakeRepo) GetConsultationByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consultations[id]
	if !ok {
		return nil, ErrConsultationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) ListConsultationsByPatient(_ context.Context, patientID uuid.UUID, status *ConsultationStatus) ([]Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Consultation
	for _, c := range r.consultations {
		if c.PatientID != patientID {
			continue
		}
		if status != nil && c.Status != *status {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (r *fakeRepo) ListConsultationsByPractitioner(_ context.Context, practitionerID uuid.UUID, status *ConsultationStatus) ([]Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Consultation
	for _, c := range r.consultations {
		if c.PractitionerID != practitionerID {
			continue
		}
		if status != nil && c.Status != *status {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (r *fakeRepo) CountActiveConsultations(_ context.Context, patientID uuid.UUID, day time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countActiveLocked(patientID, day), nil
}

func (r *fakeRepo) countActiveLocked(patientID uuid.UUID, day time.Time) int {
	day = dayOf(day)
	n := 0
	for _, c := range r.consultations {
		if c.PatientID == patientID && c.Status != StatusCancelled && dayOf(c.StartAt).Equal(day) {
			n++
		}
	}
	return n
}

func (r *fakeRepo) UpdateConsultationStatus(_ context.Context, id uuid.UUID, from, to ConsultationStatus) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consultations[id]
	if !ok || c.Status != from {
		return nil, ErrConsultationNotFound
	}
	c.Status = to
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) ReserveSlot(_ context.Context, p ReserveSlotParams) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[p.SlotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Booked {
		return nil, ErrSlotAlreadyBooked
	}
	if r.countActiveLocked(p.PatientID, p.StartAt) >= p.DailyCap {
		return nil, ErrDailyCapExceeded
	}

	s.Booked = true
	slotID := p.SlotID
	c := &Consultation{
		ID:              p.ConsultationID,
		PatientID:       p.PatientID,
		PractitionerID:  p.PractitionerID,
		SlotID:          &slotID,
		StartAt:         p.StartAt,
		DurationMinutes: p.DurationMinutes,
		MeetingLink:     p.MeetingLink,
		RoomID:          p.RoomID,
		Status:          StatusScheduled,
		Notes:           p.Notes,
	}
	r.consultations[c.ID] = c
	r.insertRemindersLocked(p.Reminders)

	cp := *c
	return &cp, nil
}

func (r *fakeRepo) ReserveAdHoc(_ context.Context, p ReserveAdHocParams) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	endAt := p.StartAt.Add(time.Duration(p.DurationMinutes) * time.Minute)
	for _, c := range r.consultations {
		if c.PractitionerID != p.PractitionerID || c.Status == StatusCancelled {
			continue
		}
		if overlaps(p.StartAt, endAt, c.StartAt, c.EndAt()) {
			return nil, ErrTimeConflict
		}
	}
	if r.countActiveLocked(p.PatientID, p.StartAt) >= p.DailyCap {
		return nil, ErrDailyCapExceeded
	}

	c := &Consultation{
		ID:              p.ConsultationID,
		PatientID:       p.PatientID,
		PractitionerID:  p.PractitionerID,
		StartAt:         p.StartAt,
		DurationMinutes: p.DurationMinutes,
		MeetingLink:     p.MeetingLink,
		RoomID:          p.RoomID,
		Status:          StatusScheduled,
		Notes:           p.Notes,
	}
	r.consultations[c.ID] = c
	r.insertRemindersLocked(p.Reminders)

	cp := *c
	return &cp, nil
}

func (r *fakeRepo) CancelConsultation(_ context.Context, id uuid.UUID) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consultations[id]
	if !ok {
		return nil, ErrConsultationNotFound
	}
	switch c.Status {
	case StatusCancelled:
		return nil, ErrAlreadyCancelled
	case StatusCompleted:
		return nil, ErrNotCancellable
	}

	c.Status = StatusCancelled
	if c.SlotID != nil {
		if s, ok := r.slots[*c.SlotID]; ok {
			s.Booked = false
		}
	}
	for _, job := range r.reminders {
		if job.ConsultationID == id && job.Status == ReminderPending {
			job.Status = ReminderCancelled
		}
	}

	cp := *c
	return &cp, nil
}

func (r *fakeRepo) AcceptInvitation(_ context.Context, p AcceptInvitationParams) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invitations[p.InvitationID]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	if inv.Status != InvitePending {
		return nil, ErrAlreadyResponded
	}

	var earliest *Slot
	for _, s := range r.slots {
		if s.PractitionerID != p.PractitionerID || s.Booked || s.StartAt.Before(p.FromDate) {
			continue
		}
		if earliest == nil || s.StartAt.Before(earliest.StartAt) {
			earliest = s
		}
	}
	if earliest == nil {
		return nil, ErrNoFreeSlots
	}
	if r.countActiveLocked(p.PatientID, earliest.StartAt) >= p.DailyCap {
		return nil, ErrDailyCapExceeded
	}

	earliest.Booked = true
	slotID := earliest.ID
	c := &Consultation{
		ID:              p.ConsultationID,
		PatientID:       p.PatientID,
		PractitionerID:  p.PractitionerID,
		SlotID:          &slotID,
		StartAt:         earliest.StartAt,
		DurationMinutes: p.DurationMinutes,
		MeetingLink:     p.MeetingLink,
		RoomID:          p.RoomID,
		Status:          StatusScheduled,
	}
	r.consultations[c.ID] = c

	respondedAt := p.RespondedAt
	inv.Status = InviteAccepted
	inv.ConsultationID = &c.ID
	inv.RespondedAt = &respondedAt

	r.insertRemindersLocked(p.BuildReminders(earliest.StartAt))

	cp := *c
	return &cp, nil
}

func (r *fakeRepo) CreateInvitation(_ context.Context, inv *Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	r.invitations[inv.ID] = &cp
	return nil
}

func (r *fakeRepo) GetInvitationByID(_ context.Context, id uuid.UUID) (*Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeRepo) ListInvitationsBySender(_ context.Context, patientID uuid.UUID) ([]Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invitation
	for _, inv := range r.invitations {
		if inv.SenderPatientID == patientID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListInvitationsByRecipient(_ context.Context, patientID uuid.UUID) ([]Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invitation
	for _, inv := range r.invitations {
		if inv.RecipientPatientID == patientID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeRepo) DeclineInvitation(_ context.Context, id uuid.UUID, respondedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[id]
	if !ok {
		return ErrInvitationNotFound
	}
	if inv.Status != InvitePending {
		return ErrAlreadyResponded
	}
	inv.Status = InviteDeclined
	inv.RespondedAt = &respondedAt
	return nil
}

func (r *fakeRepo) InsertReminderJob(_ context.Context, job *ReminderJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertRemindersLocked([]ReminderJob{*job})
	return nil
}

func (r *fakeRepo) insertRemindersLocked(jobs []ReminderJob) {
	for i := range jobs {
		cp := jobs[i]
		r.reminders[cp.ID] = &cp
	}
}

func (r *fakeRepo) ListReminderJobs(_ context.Context, consultationID uuid.UUID) ([]ReminderJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ReminderJob
	for _, job := range r.reminders {
		if job.ConsultationID == consultationID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListDueReminders(_ context.Context, kind ReminderType, windowStart, windowEnd time.Time) ([]DueReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DueReminder
	for _, job := range r.reminders {
		if job.Type != kind || job.Status != ReminderPending {
			continue
		}
		c, ok := r.consultations[job.ConsultationID]
		if !ok || (c.Status != StatusScheduled && c.Status != StatusConfirmed) {
			continue
		}
		if c.StartAt.Before(windowStart) || c.StartAt.After(windowEnd) {
			continue
		}
		out = append(out, DueReminder{
			Job:               *job,
			ConsultationStart: c.StartAt,
			MeetingLink:       c.MeetingLink,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsultationStart.Before(out[j].ConsultationStart) })
	return out, nil
}

func (r *fakeRepo) UpdateReminderStatus(_ context.Context, id uuid.UUID, from, to ReminderStatus, errMsg *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.reminders[id]
	if !ok || job.Status != from {
		return false, nil
	}
	job.Status = to
	job.ErrorMessage = errMsg
	return true, nil
}

func (r *fakeRepo) reminderStatuses(consultationID uuid.UUID) map[ReminderType][]ReminderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[ReminderType][]ReminderStatus)
	for _, job := range r.reminders {
		if job.ConsultationID == consultationID {
			out[job.Type] = append(out[job.Type], job.Status)
		}
	}
	return out
}

var _ Repository = (*fakeRepo)(nil)
var _ redisclient.Locker = (*fakeLocker)(nil)
var _ redisclient.Locker = busyLocker{}
var _ Clock = (*fakeClock)(nil)
var _ EmailSender = (*fakeSender)(nil)
var _ MeetingProvisioner = (*fakeProvisioner)(nil)

var errSendFailed = errors.New("smtp unavailable")
