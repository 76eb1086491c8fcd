package ticket

import (
	"fmt"
	"sync/atomic"
	"time"
)

// seq backs the 6-digit ticket number suffix. Seeding from the
// high-resolution clock keeps numbers increasing across restarts; the
// atomic increment removes same-instant collisions that plain wall-clock
// truncation would allow.
var seq atomic.Uint64

func init() {
	seq.Store(uint64(time.Now().UnixNano()))
}

// NextNumber returns a ticket number of the form TICK-YYYYMMDD-NNNNNN.
func NextNumber(now time.Time) string {
	n := seq.Add(1)
	return fmt.Sprintf("TICK-%s-%06d", now.Format("20060102"), n%1_000_000)
}
