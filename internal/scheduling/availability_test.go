package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func newAvailabilityService(repo *fakeRepo, clock Clock) *AvailabilityService {
	return NewAvailabilityService(repo, testCache(), clock, testLogger(), 30)
}

func mustTimeOfDay(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q): %v", s, err)
	}
	return tod
}

func TestCreateRecurringValidation(t *testing.T) {
	repo := newFakeRepo()
	practitioner := repo.addPractitioner("Dr. Vega", "vega@clinic.test")
	svc := newAvailabilityService(repo, newFakeClock(monday))
	ctx := context.Background()

	nine := mustTimeOfDay(t, "09:00")
	ten := mustTimeOfDay(t, "10:00")

	if _, err := svc.CreateRecurring(ctx, practitioner.ID, time.Weekday(7), nine, ten); !errors.Is(err, ErrInvalidDayOfWeek) {
		t.Fatalf("day 7: got %v, want ErrInvalidDayOfWeek", err)
	}
	if _, err := svc.CreateRecurring(ctx, practitioner.ID, time.Monday, ten, nine); !errors.Is(err, ErrInvalidTimeRange) {
		t.Fatalf("end before start: got %v, want ErrInvalidTimeRange", err)
	}

	if _, err := svc.CreateRecurring(ctx, practitioner.ID, time.Monday, nine, ten); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Overlapping window on the same weekday is rejected.
	if _, err := svc.CreateRecurring(ctx, practitioner.ID, time.Monday, mustTimeOfDay(t, "09:30"), mustTimeOfDay(t, "11:00")); !errors.Is(err, ErrScheduleOverlap) {
		t.Fatalf("overlap: got %v, want ErrScheduleOverlap", err)
	}
	// Same window on another weekday is fine.
	if _, err := svc.CreateRecurring(ctx, practitioner.ID, time.Tuesday, nine, ten); err != nil {
		t.Fatalf("other weekday: %v", err)
	}
}

func TestMaterializeOneHourWindow(t *testing.T) {
	repo := newFakeRepo()
	practitioner := repo.addPractitioner("Dr. Vega", "vega@clinic.test")
	svc := newAvailabilityService(repo, newFakeClock(monday.Add(-12*time.Hour)))
	ctx := context.Background()

	if _, err := svc.CreateRecurring(ctx, practitioner.ID, time.Monday, mustTimeOfDay(t, "09:00"), mustTimeOfDay(t, "10:00")); err != nil {
		t.Fatalf("create recurring: %v", err)
	}

	created, conflicts, err := svc.MaterializeSlots(ctx, practitioner.ID, monday, monday)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %d, want 0", len(conflicts))
	}
	if len(created) != 2 {
		t.Fatalf("created %d slots, want 2", len(created))
	}

	want := []time.Time{
		monday.Add(9 * time.Hour),
		monday.Add(9*time.Hour + 30*time.Minute),
	}
	for i, slot := range created {
		if !slot.StartAt.Equal(want[i]) {
			t.Errorf("slot %d starts at %s, want %s", i, slot.StartAt, want[i])
		}
		if !slot.EndAt.Equal(want[i].Add(30 * time.Minute)) {
			t.Errorf("slot %d ends at %s, want %s", i, slot.EndAt, want[i].Add(30*time.Minute))
		}
	}
}

func TestMaterializeSkipsConflictsKeepsRest(t *testing.T) {
	repo := newFakeRepo()
	practitioner := repo.addPractitioner("Dr. Vega", "vega@clinic.test")
	svc := newAvailabilityService(repo, newFakeClock(monday.Add(-12*time.Hour)))
	ctx := context.Background()

	// Existing slot occupies 09:00–09:30.
	existing := repo.addSlot(practitioner.ID, monday.Add(9*time.Hour))

	if _, err := svc.CreateRecurring(ctx, practitioner.ID, time.Monday, mustTimeOfDay(t, "09:00"), mustTimeOfDay(t, "10:00")); err != nil {
		t.Fatalf("create recurring: %v", err)
	}

	created, conflicts, err := svc.MaterializeSlots(ctx, practitioner.ID, monday, monday)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}
	if !conflicts[0].StartAt.Equal(existing.StartAt) {
		t.Errorf("conflict at %s, want %s", conflicts[0].StartAt, existing.StartAt)
	}
	if len(created) != 1 {
		t.Fatalf("created %d slots, want 1", len(created))
	}
	if !created[0].StartAt.Equal(monday.Add(9*time.Hour + 30*time.Minute)) {
		t.Errorf("created slot at %s, want 09:30", created[0].StartAt)
	}

	got, err := repo.GetSlotByID(ctx, existing.ID)
	if err != nil {
		t.Fatalf("existing slot gone: %v", err)
	}
	if got.Booked {
		t.Error("existing slot was mutated")
	}
}

func TestMaterializeDefaultHorizon(t *testing.T) {
	repo := newFakeRepo()
	practitioner := repo.addPractitioner("Dr. Vega", "vega@clinic.test")
	clock := newFakeClock(monday.Add(10 * time.Hour)) // Monday 10:00
	svc := newAvailabilityService(repo, clock)
	ctx := context.Background()

	if _, err := svc.CreateRecurring(ctx, practitioner.ID, time.Monday, mustTimeOfDay(t, "09:00"), mustTimeOfDay(t, "10:00")); err != nil {
		t.Fatalf("create recurring: %v", err)
	}

	created, _, err := svc.MaterializeSlots(ctx, practitioner.ID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	// Tomorrow through day 30 covers four Mondays (days 7, 14, 21, 28), never
	// today itself.
	if len(created) != 8 {
		t.Fatalf("created %d slots, want 8", len(created))
	}
	for _, slot := range created {
		if !slot.StartAt.After(clock.Now()) {
			t.Errorf("slot at %s is not in the future", slot.StartAt)
		}
	}
}

func TestCreateSlotsAbortsWholeBatchOnConflict(t *testing.T) {
	repo := newFakeRepo()
	practitioner := repo.addPractitioner("Dr. Vega", "vega@clinic.test")
	svc := newAvailabilityService(repo, newFakeClock(monday))
	ctx := context.Background()

	repo.addSlot(practitioner.ID, monday.Add(9*time.Hour+30*time.Minute))

	created, conflicts, err := svc.CreateSlots(ctx, practitioner.ID, monday, mustTimeOfDay(t, "09:00"), mustTimeOfDay(t, "10:30"))
	if !errors.Is(err, ErrSlotOverlap) {
		t.Fatalf("got %v, want ErrSlotOverlap", err)
	}
	if len(created) != 0 {
		t.Fatalf("created %d slots despite conflict", len(created))
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}

	slots, err := repo.ListSlots(ctx, practitioner.ID, monday, monday.AddDate(0, 0, 1), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 {
		t.Fatalf("repository holds %d slots, want only the pre-existing one", len(slots))
	}
}

func TestListSlotsUsesCacheForFreeDayQueries(t *testing.T) {
	repo := newFakeRepo()
	practitioner := repo.addPractitioner("Dr. Vega", "vega@clinic.test")
	svc := newAvailabilityService(repo, newFakeClock(monday))
	ctx := context.Background()

	repo.addSlot(practitioner.ID, monday.Add(9*time.Hour))

	first, err := svc.ListSlots(ctx, practitioner.ID, monday, monday, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("first listing: %d slots, want 1", len(first))
	}

	// A direct repository write bypasses invalidation, so the cached day is
	// served unchanged.
	repo.addSlot(practitioner.ID, monday.Add(10*time.Hour))

	second, err := svc.ListSlots(ctx, practitioner.ID, monday, monday, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 {
		t.Fatalf("cached listing: %d slots, want 1", len(second))
	}

	// Creating slots through the service invalidates the day.
	if _, _, err := svc.CreateSlots(ctx, practitioner.ID, monday, mustTimeOfDay(t, "11:00"), mustTimeOfDay(t, "11:30")); err != nil {
		t.Fatal(err)
	}
	third, err := svc.ListSlots(ctx, practitioner.ID, monday, monday, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(third) != 3 {
		t.Fatalf("after invalidation: %d slots, want 3", len(third))
	}
}

func TestDeleteSlot(t *testing.T) {
	repo := newFakeRepo()
	practitioner := repo.addPractitioner("Dr. Vega", "vega@clinic.test")
	other := repo.addPractitioner("Dr. Osei", "osei@clinic.test")
	svc := newAvailabilityService(repo, newFakeClock(monday))
	ctx := context.Background()

	slot := repo.addSlot(practitioner.ID, monday.Add(9*time.Hour))

	if err := svc.DeleteSlot(ctx, other.ID, slot.ID); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("foreign slot: got %v, want ErrSlotNotFound", err)
	}

	booked := repo.addSlot(practitioner.ID, monday.Add(10*time.Hour))
	repo.mu.Lock()
	repo.slots[booked.ID].Booked = true
	repo.mu.Unlock()
	if err := svc.DeleteSlot(ctx, practitioner.ID, booked.ID); !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Fatalf("booked slot: got %v, want ErrSlotAlreadyBooked", err)
	}

	if err := svc.DeleteSlot(ctx, practitioner.ID, slot.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetSlotByID(ctx, slot.ID); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("slot still present: %v", err)
	}
}
