package resource

// Handle identifies an exported object within one process's handle space.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Event types for export lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventAcquired
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventAcquired:
		return "acquired"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event represents an export lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   uint32
	Type   EventType
	Counts Counts
}

// Observer receives notifications about export lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Counts are the remote reference counts held on an exported value.
type Counts struct {
	Strong int32
	Weak   int32
}

// Zero reports whether no remote references remain.
func (c Counts) Zero() bool { return c.Strong == 0 && c.Weak == 0 }

// Backend provides the underlying storage for exported values.
type Backend interface {
	// Create stores a value with zero counts and returns a handle.
	Create(kind uint32, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Drop removes a value that has no references left.
	Drop(handle Handle) (any, bool)

	// Close releases all values held by the backend.
	Close() error
}

// CountingBackend extends Backend with remote reference counts.
type CountingBackend interface {
	Backend

	// Acquire adds a strong or weak reference.
	Acquire(handle Handle, weak bool) (Counts, bool)

	// Release drops a strong or weak reference.
	Release(handle Handle, weak bool) (Counts, bool)
}

// Dropper is optionally implemented by values that need cleanup when their
// export is dropped.
type Dropper interface {
	Drop()
}
