package domain

import (
	"slices"
	"strings"
	"time"
)

// TimestampLayout is the wire format of task creation times.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is a UTC instant with millisecond precision that encodes as an
// ISO-8601 string.
type Timestamp struct {
	time.Time
}

// NewTimestamp normalizes t to UTC milliseconds.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, len(TimestampLayout)+2)
	out = append(out, '"')
	out = t.UTC().AppendFormat(out, TimestampLayout)
	return append(out, '"'), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := time.Parse(`"`+time.RFC3339Nano+`"`, s)
	if err != nil {
		return err
	}
	*t = NewTimestamp(parsed)
	return nil
}

// Task is a single to-do item.
type Task struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Done      bool      `json:"done"`
	CreatedAt Timestamp `json:"date"`
}

// Equal reports whether both records carry the same state.
func (t Task) Equal(o Task) bool {
	return t.ID == o.ID && t.Content == o.Content && t.Done == o.Done && t.CreatedAt.Equal(o.CreatedAt.Time)
}

// TaskPatch carries the fields of a partial update. Nil fields are left
// untouched.
type TaskPatch struct {
	Content *string `json:"content,omitempty"`
	Done    *bool   `json:"done,omitempty"`
}

// Normalize trims the content and drops it when blank. A patch that is left
// with nothing to change yields ErrNothingToUpdate.
func (p TaskPatch) Normalize() (TaskPatch, error) {
	out := TaskPatch{Done: p.Done}
	if p.Content != nil {
		if content := strings.TrimSpace(*p.Content); content != "" {
			out.Content = &content
		}
	}
	if out.Content == nil && out.Done == nil {
		return TaskPatch{}, ErrNothingToUpdate
	}
	return out, nil
}

// Apply returns t with the patch fields applied.
func (p TaskPatch) Apply(t Task) Task {
	if p.Content != nil {
		t.Content = *p.Content
	}
	if p.Done != nil {
		t.Done = *p.Done
	}
	return t
}

// ValidateContent returns the trimmed content or ErrNoContent.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrNoContent
	}
	return trimmed, nil
}

// CompareNewestFirst orders tasks by descending creation time, then by
// descending identifier so the order is total.
func CompareNewestFirst(a, b Task) int {
	if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
		return c
	}
	return strings.Compare(b.ID, a.ID)
}

// SortNewestFirst sorts tasks in place for display.
func SortNewestFirst(tasks []Task) {
	slices.SortFunc(tasks, CompareNewestFirst)
}
