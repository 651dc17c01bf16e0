package recovery

import "time"

// UnlockAt returns the instant a triggered recovery becomes completable.
func UnlockAt(triggeredAt time.Time) time.Time {
	return triggeredAt.Add(TimeLockDelay)
}

// Remaining returns how long until unlockAt, clamped at zero.
//
// The caller supplies the server's own clock reading; client-supplied
// timestamps must never reach this function, since trusting them would
// let an attacker simulate elapsed time.
func Remaining(now, unlockAt time.Time) time.Duration {
	d := unlockAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// TimeLockExpired reports whether the time-lock for a recovery triggered
// at triggeredAt has elapsed as of now.
func TimeLockExpired(now, triggeredAt time.Time) bool {
	return !now.Before(UnlockAt(triggeredAt))
}
