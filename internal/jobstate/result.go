package jobstate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type resultKind uint8

const (
	kindPending resultKind = iota
	kindPlaceholder
	kindList
)

// Result is the value of one stage's output field. The zero value is pending.
//
// On the wire a pending result is null, a placeholder is a bare string and a
// finished result is an array of messages (empty means no problems found).
type Result struct {
	kind  resultKind
	text  string
	items []string
}

// Pending returns a result for a stage that has not run yet.
func Pending() Result { return Result{} }

// Placeholder returns a result that stands in for a value still being
// computed or deliberately withheld.
func Placeholder(text string) Result {
	return Result{kind: kindPlaceholder, text: text}
}

// List returns a finished result. A nil slice is treated as empty.
func List(items []string) Result {
	out := make([]string, len(items))
	copy(out, items)
	return Result{kind: kindList, items: out}
}

func (r Result) IsPending() bool { return r.kind == kindPending }

func (r Result) IsPlaceholder() bool { return r.kind == kindPlaceholder }

// Text returns the placeholder text, or "" for other kinds.
func (r Result) Text() string { return r.text }

// Items returns the finished messages and whether the result is finished.
func (r Result) Items() ([]string, bool) {
	if r.kind != kindList {
		return nil, false
	}
	return r.items, true
}

// Clean reports whether the stage finished with no messages.
func (r Result) Clean() bool {
	return r.kind == kindList && len(r.items) == 0
}

func (r Result) String() string {
	switch r.kind {
	case kindPlaceholder:
		return r.text
	case kindList:
		return fmt.Sprintf("%d message(s)", len(r.items))
	default:
		return "pending"
	}
}

func (r Result) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindPlaceholder:
		return json.Marshal(r.text)
	case kindList:
		if r.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.items)
	default:
		return []byte("null"), nil
	}
}

func (r *Result) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*r = Pending()
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode placeholder result: %w", err)
		}
		*r = Placeholder(s)
	case trimmed[0] == '[':
		var items []string
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("decode result list: %w", err)
		}
		*r = List(items)
	default:
		return fmt.Errorf("result must be null, a string or an array of strings")
	}
	return nil
}
