package queue

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
)

// guarded runs fn with mu held. A panic inside fn is logged and swallowed;
// the lock is always released and the protected data stays in use.
func guarded(mu *sync.Mutex, op string, fn func()) (recovered bool) {
	mu.Lock()
	defer mu.Unlock()
	return protect(op, fn)
}

// guardedOr is guarded with a second step, onPanic, that runs under the same
// lock when fn panicked. It lets callers hand back the current view instead
// of zero values.
func guardedOr(mu *sync.Mutex, op string, fn, onPanic func()) (recovered bool) {
	mu.Lock()
	defer mu.Unlock()
	if !protect(op, fn) {
		return false
	}
	protect(op+"/recover", onPanic)
	return true
}

// tryGuarded is guarded without blocking. It reports false when the lock is busy.
func tryGuarded(mu *sync.Mutex, op string, fn func()) bool {
	if !mu.TryLock() {
		return false
	}
	defer mu.Unlock()
	protect(op, fn)
	return true
}

func protect(op string, fn func()) (recovered bool) {
	defer func() {
		if r := recover(); r != nil {
			recovered = true
			log.Error().Str("op", op).Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("recovered panic while holding queue lock")
		}
	}()
	fn()
	return false
}
