package admission

import "time"

// Decision is the outcome of an admission check. A rejected Decision carries
// the number of whole seconds until the caller's window resets.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

func Allow() Decision { return Decision{Allowed: true} }

func Reject(retryAfterSeconds int) Decision {
	return Decision{Allowed: false, RetryAfterSeconds: retryAfterSeconds}
}

// admit applies one fixed-window step to st. st must not be nil; a zero
// WindowResetAt is treated as a missing window.
//
// The window only starts over once now is strictly after WindowResetAt, and
// a rejected request leaves Count untouched.
func admit(st *LimiterState, quota int, window time.Duration, now time.Time) Decision {
	if st.WindowResetAt.IsZero() || now.After(st.WindowResetAt) {
		st.Count = 1
		st.WindowResetAt = now.Add(window)
		return Allow()
	}

	if st.Count < quota {
		st.Count++
		return Allow()
	}

	return Reject(retryAfterSeconds(st.WindowResetAt.Sub(now)))
}

// retryAfterSeconds rounds remaining up to the next whole second.
func retryAfterSeconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}
