package scheduling

import "time"

// Clock abstracts time.Now so reminder windows and cap checks are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }
