package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestTimestampJSONRoundTrip(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 3, 1, 10, 20, 30, 123456789, time.FixedZone("x", 3600)))
	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2024-03-01T09:20:30.123Z"` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var back Timestamp
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(ts.Time) {
		t.Fatalf("expected %v got %v", ts, back)
	}
}

func TestTimestampAcceptsRFC3339(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2024-03-01T09:20:30Z"`), &ts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ts.String() != "2024-03-01T09:20:30.000Z" {
		t.Fatalf("unexpected timestamp %s", ts)
	}
}

func TestTaskWireShape(t *testing.T) {
	task := Task{ID: "t1", Content: "buy milk", CreatedAt: NewTimestamp(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	expected := `{"id":"t1","content":"buy milk","done":false,"date":"2024-01-02T03:04:05.000Z"}`
	if string(data) != expected {
		t.Fatalf("expected %s got %s", expected, data)
	}
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "plain", in: "buy milk", want: "buy milk"},
		{name: "trimmed", in: "  buy milk \n", want: "buy milk"},
		{name: "empty", in: "", wantErr: ErrNoContent},
		{name: "blank", in: " \t\n", wantErr: ErrNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateContent(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected err %v got %v", tt.wantErr, err)
			}
			if tt.wantErr != nil && !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input family, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q got %q", tt.want, got)
			}
		})
	}
}

func TestTaskPatchNormalize(t *testing.T) {
	blank := "   "
	text := " new text "
	done := true

	if _, err := (TaskPatch{}).Normalize(); !errors.Is(err, ErrNothingToUpdate) {
		t.Fatalf("expected nothing to update, got %v", err)
	}
	if _, err := (TaskPatch{Content: &blank}).Normalize(); !errors.Is(err, ErrNothingToUpdate) {
		t.Fatalf("expected blank content to be rejected, got %v", err)
	}

	p, err := (TaskPatch{Content: &blank, Done: &done}).Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if p.Content != nil || p.Done == nil || !*p.Done {
		t.Fatalf("expected blank content dropped and done kept, got %+v", p)
	}

	p, err = (TaskPatch{Content: &text}).Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if p.Content == nil || *p.Content != "new text" {
		t.Fatalf("expected trimmed content, got %+v", p)
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tasks := []Task{
		{ID: "a", CreatedAt: NewTimestamp(base)},
		{ID: "c", CreatedAt: NewTimestamp(base.Add(2 * time.Second))},
		{ID: "b", CreatedAt: NewTimestamp(base.Add(time.Second))},
		{ID: "d", CreatedAt: NewTimestamp(base.Add(time.Second))},
	}
	SortNewestFirst(tasks)
	order := ""
	for _, task := range tasks {
		order += task.ID
	}
	if order != "cdba" {
		t.Fatalf("unexpected order %s", order)
	}
}

func TestEventKindStreamNames(t *testing.T) {
	for _, kind := range []EventKind{TaskCreated, TaskUpdated, TaskRemoved} {
		name := kind.StreamName()
		back, ok := KindForStreamName(name)
		if !ok || back != kind {
			t.Fatalf("kind %s does not survive %s", kind, name)
		}
	}
	if _, ok := KindForStreamName(EventConnected); ok {
		t.Fatal("connected is not a change event")
	}
}
