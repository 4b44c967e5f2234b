// Package syncx provides the blocking primitives the rest of binderkit is
// built on: a protocol-checked Mutex, an open/close ConditionVariable and a
// one-shot Event.
//
// Timed waits come in three forms, relative (WaitTimeout), absolute
// (WaitUntil) and context-bound (WaitContext). Expiry returns an error of
// kind timed_out rather than panicking:
//
//	cv := syncx.NewConditionVariable()
//	go func() { ...; cv.Broadcast() }()
//	if err := cv.WaitTimeout(time.Second); errors.IsKind(err, errors.KindTimedOut) {
//	    // nobody broadcast in time
//	}
//
// Protocol misuse, such as unlocking a Mutex that is not held or
// broadcasting an open ConditionVariable, panics with *errors.Violation.
package syncx
