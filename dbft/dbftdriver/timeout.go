package dbftdriver

import (
	"time"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// TimeoutStrategy decides how long a round may last
// before the driver injects a timeout into the engine.
type TimeoutStrategy interface {
	Timeout(view dbftconsensus.ViewNumber) time.Duration
}

// LinearTimeoutStrategy grows the round timeout linearly with the view,
// so that rounds which keep failing allow more time for slow validators.
type LinearTimeoutStrategy struct {
	// Timeout for view zero.
	Base time.Duration

	// Added for each view after zero.
	PerView time.Duration
}

// DefaultTimeoutStrategy is used when [Config.TimeoutStrategy] is nil.
var DefaultTimeoutStrategy = LinearTimeoutStrategy{
	Base:    15 * time.Second,
	PerView: 5 * time.Second,
}

func (s LinearTimeoutStrategy) Timeout(view dbftconsensus.ViewNumber) time.Duration {
	return s.Base + time.Duration(view)*s.PerView
}
