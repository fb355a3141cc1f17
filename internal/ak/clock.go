package ak

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the time stamped into version records and journal entries.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator mints transaction IDs.
type IDGenerator interface {
	New() string
}

// UUIDGenerator mints random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
