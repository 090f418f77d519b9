package scheduling

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SlotCache caches free-slot listings per practitioner and day. It only ever
// serves read endpoints; booking conflict checks always go to the database.
// A nil *SlotCache is valid and disables caching.
type SlotCache struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, []Slot]
}

func NewSlotCache(size int) (*SlotCache, error) {
	cache, err := lru.New[string, []Slot](size)
	if err != nil {
		return nil, fmt.Errorf("init slot cache: %w", err)
	}
	return &SlotCache{cache: cache}, nil
}

func cacheKey(practitionerID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("%s:%s", practitionerID, day.Format("2006-01-02"))
}

func (c *SlotCache) Get(practitionerID uuid.UUID, day time.Time) ([]Slot, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cache.Get(cacheKey(practitionerID, day))
}

func (c *SlotCache) Store(practitionerID uuid.UUID, day time.Time, slots []Slot) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(cacheKey(practitionerID, day), slots)
}

// Invalidate drops the entry for the practitioner's day. Called whenever a
// slot on that day is created, deleted, booked or freed.
func (c *SlotCache) Invalidate(practitionerID uuid.UUID, day time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Remove(cacheKey(practitionerID, day))
}
