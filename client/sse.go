package client

import (
	"bufio"
	"bytes"
	"io"
)

// Event is one dispatched server-sent event.
type Event struct {
	Name string
	Data []byte
}

// Decoder reads events from a text/event-stream body. Comments and the id
// and retry fields are skipped, as are events that carry no data.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks until a complete event is read. It returns io.EOF once the
// stream ends; a partially received event is discarded.
func (d *Decoder) Next() (Event, error) {
	var (
		ev      Event
		data    bytes.Buffer
		hasData bool
	)
	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			// an event without data lines is not dispatched
			if !hasData {
				ev = Event{}
				continue
			}
			if ev.Name == "" {
				ev.Name = "message"
			}
			ev.Data = data.Bytes()
			return ev, nil
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			ev.Name = string(value)
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		}
	}
}
