package domain

// EventKind tags a ChangeEvent.
type EventKind string

const (
	TaskCreated EventKind = "created"
	TaskUpdated EventKind = "updated"
	TaskRemoved EventKind = "removed"
)

// Event stream type names.
const (
	EventConnected   = "connected"
	EventTaskCreated = "taskCreated"
	EventTaskUpdated = "taskUpdated"
	EventTaskRemoved = "taskRemoved"
)

// ChangeEvent describes a committed mutation of a task.
type ChangeEvent struct {
	Kind EventKind
	Task Task
}

// StreamName returns the event stream type for the kind.
func (k EventKind) StreamName() string {
	switch k {
	case TaskCreated:
		return EventTaskCreated
	case TaskUpdated:
		return EventTaskUpdated
	case TaskRemoved:
		return EventTaskRemoved
	}
	return ""
}

// KindForStreamName is the inverse of EventKind.StreamName.
func KindForStreamName(name string) (EventKind, bool) {
	switch name {
	case EventTaskCreated:
		return TaskCreated, true
	case EventTaskUpdated:
		return TaskUpdated, true
	case EventTaskRemoved:
		return TaskRemoved, true
	}
	return "", false
}

// ConnectedData is the payload of the stream handshake.
type ConnectedData struct {
	ClientID string `json:"clientId"`
}

// RemovedData is the payload of a taskRemoved event.
type RemovedData struct {
	ID string `json:"id"`
}
