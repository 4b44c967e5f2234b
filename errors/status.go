package errors

// Status is the numeric form of a Kind carried in reply frames. Zero is
// success; the values are stable within one build of the library.
type Status int32

const StatusOK Status = 0

var kindStatus = map[Kind]Status{
	KindTypeMismatch:       -1,
	KindNotFound:           -2,
	KindOutOfRange:         -3,
	KindWouldBlock:         -4,
	KindUnreachable:        -5,
	KindUnsupported:        -6,
	KindUnknownTransaction: -7,
	KindBadArgument:        -8,
	KindTimedOut:           -9,
	KindInvalidData:        -10,
	KindTruncated:          -11,
	KindClosed:             -12,
	KindInvalidInput:       -13,
	KindFailed:             -100,
}

var statusKind = func() map[Status]Kind {
	m := make(map[Status]Kind, len(kindStatus))
	for k, s := range kindStatus {
		m[s] = k
	}
	return m
}()

// StatusOf converts err into the status sent back to a remote caller.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	if s, ok := kindStatus[KindOf(err)]; ok {
		return s
	}
	return kindStatus[KindFailed]
}

// FromStatus rebuilds a remote failure. detail is the message the remote
// side attached, if any.
func FromStatus(s Status, detail string) error {
	if s == StatusOK {
		return nil
	}
	kind, ok := statusKind[s]
	if !ok {
		kind = KindFailed
	}
	return &Error{
		Phase:  PhaseTransact,
		Kind:   kind,
		Detail: detail,
		Value:  s,
	}
}
