package conversation

import "sync"

// Flow identifies a multi-step dialog
type Flow int

const (
	FlowNone Flow = iota
	FlowAdd
	FlowEdit
	FlowDelete
)

// String returns the flow name used in logs and metrics labels.
func (f Flow) String() string {
	switch f {
	case FlowAdd:
		return "add"
	case FlowEdit:
		return "edit"
	case FlowDelete:
		return "delete"
	default:
		return "none"
	}
}

// State is the step a flow is waiting on
type State int

const (
	StateIdle State = iota
	StateAwaitingDate
	StateAwaitingTaskText
	StateAwaitingTaskID
	StateAwaitingNewText
	StateAwaitingDeleteID
)

// String returns the state name used in logs and metrics labels.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingDate:
		return "awaiting_date"
	case StateAwaitingTaskText:
		return "awaiting_task_text"
	case StateAwaitingTaskID:
		return "awaiting_task_id"
	case StateAwaitingNewText:
		return "awaiting_new_text"
	case StateAwaitingDeleteID:
		return "awaiting_delete_id"
	default:
		return "unknown"
	}
}

// Session is the transient state of one user's active flow
type Session struct {
	Flow   Flow
	State  State
	Date   string // add flow: selected date
	TaskID int64  // edit flow: task being edited
}

// Sessions maps user ids to their active flow. Only the map is guarded;
// events of a single user are expected to arrive one at a time.
type Sessions struct {
	mu     sync.Mutex
	byUser map[int64]Session
}

// NewSessions creates an empty session table
func NewSessions() *Sessions {
	return &Sessions{byUser: make(map[int64]Session)}
}

// Get returns the session of a user, if one is active.
func (s *Sessions) Get(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byUser[userID]
	return sess, ok
}

// Put replaces the session of a user.
func (s *Sessions) Put(userID int64, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = sess
}

// Clear drops the session of a user and reports whether one existed.
func (s *Sessions) Clear(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byUser[userID]
	delete(s.byUser, userID)
	return ok
}

// Len returns the number of users with an active flow.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}
