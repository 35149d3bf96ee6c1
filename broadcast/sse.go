package broadcast

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/Resized/todo-list/domain"
)

// KeepAliveFrame is an SSE comment; clients ignore it.
var KeepAliveFrame = []byte(": ping\n\n")

// EncodeFrame renders one event in text/event-stream format.
func EncodeFrame(event string, payload any) ([]byte, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(event) + len(data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(event)
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// EncodeEvent renders a change event. Removals only carry the identifier.
func EncodeEvent(ev domain.ChangeEvent) ([]byte, error) {
	name := ev.Kind.StreamName()
	if name == "" {
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if ev.Kind == domain.TaskRemoved {
		return EncodeFrame(name, domain.RemovedData{ID: ev.Task.ID})
	}
	return EncodeFrame(name, ev.Task)
}

// ConnectedFrame is the handshake sent when a stream opens.
func ConnectedFrame(clientID string) ([]byte, error) {
	return EncodeFrame(domain.EventConnected, domain.ConnectedData{ClientID: clientID})
}
