package browser

import (
	"fmt"
	"strconv"
	"strings"

	"planday/internal/utils"
)

// ActionKind identifies a button action
type ActionKind int

const (
	ActionView ActionKind = iota
	ActionDone
	ActionEdit
	ActionDelete
	ActionPrev
	ActionNext
	ActionBack
)

var actionPrefixes = map[ActionKind]string{
	ActionView:   "view",
	ActionDone:   "done",
	ActionEdit:   "edit",
	ActionDelete: "delete",
	ActionPrev:   "prev",
	ActionNext:   "next",
	ActionBack:   "back",
}

// String returns the payload prefix of the action kind.
func (k ActionKind) String() string {
	if prefix, ok := actionPrefixes[k]; ok {
		return prefix
	}
	return "unknown"
}

// takesDate reports whether the action carries a date rather than a task id.
func (k ActionKind) takesDate() bool {
	return k == ActionPrev || k == ActionNext || k == ActionBack
}

// Action is a decoded button payload. Task actions carry TaskID, navigation
// actions carry Date; the other field is zero.
type Action struct {
	Kind   ActionKind
	TaskID int64
	Date   string
}

// ViewAction opens the detail view of a task.
func ViewAction(id int64) Action { return Action{Kind: ActionView, TaskID: id} }

// DoneAction marks a task complete.
func DoneAction(id int64) Action { return Action{Kind: ActionDone, TaskID: id} }

// EditAction starts editing a task's description.
func EditAction(id int64) Action { return Action{Kind: ActionEdit, TaskID: id} }

// DeleteAction removes a task.
func DeleteAction(id int64) Action { return Action{Kind: ActionDelete, TaskID: id} }

// PrevAction shows the day view for date (the day before the current one).
func PrevAction(date string) Action { return Action{Kind: ActionPrev, Date: date} }

// NextAction shows the day view for date (the day after the current one).
func NextAction(date string) Action { return Action{Kind: ActionNext, Date: date} }

// BackAction returns from a detail view to the day view for date.
func BackAction(date string) Action { return Action{Kind: ActionBack, Date: date} }

// Payload encodes the action as an opaque button payload, e.g. "view_7".
func (a Action) Payload() string {
	if a.Kind.takesDate() {
		return a.Kind.String() + "_" + a.Date
	}
	return a.Kind.String() + "_" + strconv.FormatInt(a.TaskID, 10)
}

// ParseAction decodes a button payload. Unknown prefixes, non-integer ids
// and invalid dates are rejected.
func ParseAction(payload string) (Action, error) {
	prefix, arg, found := strings.Cut(payload, "_")
	if !found || arg == "" {
		return Action{}, utils.ErrInvalidActionPayload(payload)
	}

	kind, ok := kindForPrefix(prefix)
	if !ok {
		return Action{}, utils.ErrInvalidActionPayload(payload)
	}

	if kind.takesDate() {
		date, err := utils.NormalizeDay(arg)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %w", utils.ErrInvalidActionPayload(payload), err)
		}
		return Action{Kind: kind, Date: date}, nil
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return Action{}, utils.ErrInvalidActionPayload(payload)
	}
	return Action{Kind: kind, TaskID: id}, nil
}

func kindForPrefix(prefix string) (ActionKind, bool) {
	for kind, p := range actionPrefixes {
		if p == prefix {
			return kind, true
		}
	}
	return 0, false
}
