package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidTimeRange = errors.New("start time must be before end time")
	ErrInvalidDayOfWeek = errors.New("day of week must be between 0 and 6")
	ErrScheduleOverlap  = errors.New("schedule overlaps an existing one for that day")
	ErrSlotOverlap      = errors.New("time slot conflicts detected")
)

// DefaultHorizonDays is how far ahead slots are materialized when the caller
// gives no explicit range: tomorrow through today+30.
const DefaultHorizonDays = 30

// AvailabilityService owns recurring templates and the slots materialized
// from them.
type AvailabilityService struct {
	repo        Repository
	cache       *SlotCache
	clock       Clock
	log         *logrus.Logger
	horizonDays int
}

func NewAvailabilityService(repo Repository, cache *SlotCache, clock Clock, log *logrus.Logger, horizonDays int) *AvailabilityService {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &AvailabilityService{
		repo:        repo,
		cache:       cache,
		clock:       clock,
		log:         log,
		horizonDays: horizonDays,
	}
}

func (s *AvailabilityService) CreateRecurring(ctx context.Context, practitionerID uuid.UUID, day time.Weekday, start, end TimeOfDay) (*RecurringAvailability, error) {
	if day < time.Sunday || day > time.Saturday {
		return nil, ErrInvalidDayOfWeek
	}
	if start >= end {
		return nil, ErrInvalidTimeRange
	}

	if _, err := s.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
		return nil, fmt.Errorf("load practitioner: %w", err)
	}

	existing, err := s.repo.ListRecurringAvailability(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("list recurring availability: %w", err)
	}
	for _, ra := range existing {
		if ra.DayOfWeek != day {
			continue
		}
		if start < ra.EndTime && end > ra.StartTime {
			return nil, ErrScheduleOverlap
		}
	}

	ra := &RecurringAvailability{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		DayOfWeek:      day,
		StartTime:      start,
		EndTime:        end,
	}
	if err := s.repo.CreateRecurringAvailability(ctx, ra); err != nil {
		return nil, fmt.Errorf("create recurring availability: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"practitioner_id": practitionerID,
		"day_of_week":     int(day),
		"start":           start.String(),
		"end":             end.String(),
	}).Info("recurring availability created")

	return ra, nil
}

func (s *AvailabilityService) ListRecurring(ctx context.Context, practitionerID uuid.UUID) ([]RecurringAvailability, error) {
	return s.repo.ListRecurringAvailability(ctx, practitionerID)
}

func (s *AvailabilityService) DeleteRecurring(ctx context.Context, practitionerID, id uuid.UUID) error {
	return s.repo.DeleteRecurringAvailability(ctx, practitionerID, id)
}

// MaterializeSlots expands every recurring template over [from, to] at the
// fixed 30-minute granularity. Candidates overlapping an existing slot are
// reported as conflicts; non-conflicting ones are persisted. Existing slots
// are never mutated. A zero from/to selects the default horizon.
func (s *AvailabilityService) MaterializeSlots(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Slot, []SlotConflict, error) {
	if from.IsZero() || to.IsZero() {
		today := dayOf(s.clock.Now())
		from = today.AddDate(0, 0, 1)
		to = today.AddDate(0, 0, s.horizonDays)
	}
	if to.Before(from) {
		return nil, nil, ErrInvalidTimeRange
	}

	if _, err := s.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
		return nil, nil, fmt.Errorf("load practitioner: %w", err)
	}

	templates, err := s.repo.ListRecurringAvailability(ctx, practitionerID)
	if err != nil {
		return nil, nil, fmt.Errorf("list recurring availability: %w", err)
	}

	var created []Slot
	var conflicts []SlotConflict

	for day := dayOf(from); !day.After(dayOf(to)); day = day.AddDate(0, 0, 1) {
		var candidates []Slot
		for _, tpl := range templates {
			if tpl.DayOfWeek != day.Weekday() {
				continue
			}
			candidates = append(candidates, walkSlots(practitionerID, day, tpl.StartTime, tpl.EndTime)...)
		}
		if len(candidates) == 0 {
			continue
		}

		accepted, dayConflicts, err := s.filterConflicts(ctx, practitionerID, day, candidates)
		if err != nil {
			return nil, nil, err
		}
		conflicts = append(conflicts, dayConflicts...)
		if len(accepted) == 0 {
			continue
		}
		if err := s.repo.InsertSlots(ctx, accepted); err != nil {
			return nil, nil, fmt.Errorf("insert slots: %w", err)
		}
		s.cache.Invalidate(practitionerID, day)
		created = append(created, accepted...)
	}

	s.log.WithFields(logrus.Fields{
		"practitioner_id": practitionerID,
		"created":         len(created),
		"conflicts":       len(conflicts),
	}).Info("slots materialized")

	return created, conflicts, nil
}

// CreateSlots generates slots for a single date, the ad-hoc practitioner
// action. Unlike materialization, any conflict aborts the whole batch and
// the full conflict list is returned.
func (s *AvailabilityService) CreateSlots(ctx context.Context, practitionerID uuid.UUID, day time.Time, start, end TimeOfDay) ([]Slot, []SlotConflict, error) {
	if start >= end {
		return nil, nil, ErrInvalidTimeRange
	}

	day = dayOf(day)
	candidates := walkSlots(practitionerID, day, start, end)
	if len(candidates) == 0 {
		return nil, nil, ErrInvalidTimeRange
	}

	accepted, conflicts, err := s.filterConflicts(ctx, practitionerID, day, candidates)
	if err != nil {
		return nil, nil, err
	}
	if len(conflicts) > 0 {
		return nil, conflicts, ErrSlotOverlap
	}

	if err := s.repo.InsertSlots(ctx, accepted); err != nil {
		return nil, nil, fmt.Errorf("insert slots: %w", err)
	}
	s.cache.Invalidate(practitionerID, day)

	s.log.WithFields(logrus.Fields{
		"practitioner_id": practitionerID,
		"date":            day.Format("2006-01-02"),
		"created":         len(accepted),
	}).Info("slots created")

	return accepted, nil, nil
}

func (s *AvailabilityService) ListSlots(ctx context.Context, practitionerID uuid.UUID, from, to time.Time, freeOnly bool) ([]Slot, error) {
	// Free listings for a single day go through the cache; everything else
	// hits the database.
	if freeOnly && sameDay(from, to) {
		day := dayOf(from)
		if slots, ok := s.cache.Get(practitionerID, day); ok {
			return slots, nil
		}
		slots, err := s.repo.ListSlots(ctx, practitionerID, from, to, true)
		if err != nil {
			return nil, err
		}
		s.cache.Store(practitionerID, day, slots)
		return slots, nil
	}
	return s.repo.ListSlots(ctx, practitionerID, from, to, freeOnly)
}

func (s *AvailabilityService) DeleteSlot(ctx context.Context, practitionerID, id uuid.UUID) error {
	slot, err := s.repo.GetSlotByID(ctx, id)
	if err != nil {
		return err
	}
	if slot.PractitionerID != practitionerID {
		return ErrSlotNotFound
	}
	if err := s.repo.DeleteSlot(ctx, practitionerID, id); err != nil {
		return err
	}
	s.cache.Invalidate(practitionerID, slot.Date())
	return nil
}

// filterConflicts splits candidates into insertable slots and conflicts
// against the slots already persisted for that practitioner and day.
func (s *AvailabilityService) filterConflicts(ctx context.Context, practitionerID uuid.UUID, day time.Time, candidates []Slot) ([]Slot, []SlotConflict, error) {
	existing, err := s.repo.ListSlots(ctx, practitionerID, day, day.AddDate(0, 0, 1), false)
	if err != nil {
		return nil, nil, fmt.Errorf("list existing slots: %w", err)
	}

	var accepted []Slot
	var conflicts []SlotConflict
	for _, cand := range candidates {
		conflicted := false
		for _, ex := range existing {
			if overlaps(cand.StartAt, cand.EndAt, ex.StartAt, ex.EndAt) {
				conflicted = true
				break
			}
		}
		if conflicted {
			conflicts = append(conflicts, SlotConflict{StartAt: cand.StartAt, EndAt: cand.EndAt})
			continue
		}
		accepted = append(accepted, cand)
	}
	return accepted, conflicts, nil
}

// walkSlots walks [start, end) on the given day in fixed increments. A
// candidate is only emitted while its end stays within the template's end.
func walkSlots(practitionerID uuid.UUID, day time.Time, start, end TimeOfDay) []Slot {
	var slots []Slot
	rangeEnd := end.OnDate(day)
	for cur := start.OnDate(day); ; cur = cur.Add(SlotGranularity) {
		slotEnd := cur.Add(SlotGranularity)
		if slotEnd.After(rangeEnd) {
			break
		}
		slots = append(slots, Slot{
			ID:             uuid.New(),
			PractitionerID: practitionerID,
			StartAt:        cur,
			EndAt:          slotEnd,
		})
	}
	return slots
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	return dayOf(a).Equal(dayOf(b))
}
