package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodywise/scheduling-service/internal/db"
	"github.com/bodywise/scheduling-service/internal/scheduling"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	practitioners, err := seedPractitioners(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAvailability(context.Background(), pool, practitioners, 14); err != nil {
		log.Fatalf("seed availability: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d practitioners", count)

	specialties := []string{
		"Nutrition",
		"Physiotherapy",
		"Dermatology",
		"General Practice",
		"Psychology",
		"Endocrinology",
		"Cardiology",
		"Sleep Medicine",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, name, specialty, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, email)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("practitioners seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedAvailability gives each practitioner a few weekday windows and
// materializes the slots for the coming days directly.
func seedAvailability(ctx context.Context, pool *pgxpool.Pool, practitioners []uuid.UUID, horizonDays int) error {
	log.Printf("seeding availability for %d practitioners", len(practitioners))

	today := time.Now().Truncate(24 * time.Hour)

	for _, pid := range practitioners {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		windows := weeklyWindows()
		for _, w := range windows {
			_, err := tx.Exec(ctx, `
				INSERT INTO recurring_availability (id, practitioner_id, day_of_week, start_minute, end_minute, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, uuid.New(), pid, int(w.day), int(w.start), int(w.end))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		for d := 1; d <= horizonDays; d++ {
			day := today.AddDate(0, 0, d)
			for _, w := range windows {
				if day.Weekday() != w.day {
					continue
				}
				for t := w.start; t+scheduling.TimeOfDay(scheduling.ConsultationMinutes) <= w.end; t += scheduling.TimeOfDay(scheduling.ConsultationMinutes) {
					startAt := t.OnDate(day)
					_, err := tx.Exec(ctx, `
						INSERT INTO slots (id, practitioner_id, start_at, end_at, booked, created_at, updated_at)
						VALUES ($1, $2, $3, $4, FALSE, now(), now())
					`, uuid.New(), pid, startAt, startAt.Add(scheduling.SlotGranularity))
					if err != nil {
						_ = tx.Rollback(ctx)
						return err
					}
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Println("availability seeded")
	return nil
}

type window struct {
	day   time.Weekday
	start scheduling.TimeOfDay
	end   scheduling.TimeOfDay
}

func weeklyWindows() []window {
	weekdays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	}

	gofakeit.ShuffleAnySlice(weekdays)

	// One window per weekday so materialized slots never collide.
	n := gofakeit.Number(2, 4)
	out := make([]window, 0, n)
	for i := 0; i < n; i++ {
		startHour := gofakeit.Number(8, 15)
		lengthHours := gofakeit.Number(1, 4)
		out = append(out, window{
			day:   weekdays[i],
			start: scheduling.TimeOfDay(startHour * 60),
			end:   scheduling.TimeOfDay((startHour + lengthHours) * 60),
		})
	}
	return out
}
