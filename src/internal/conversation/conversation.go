package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"taskherd/src/internal/directory"
	"taskherd/src/internal/notify"
	"taskherd/src/internal/tasks"
)

// TaskStore is the slice of the storage layer the conversation needs:
// commit only ever inserts the finished draft.
type TaskStore interface {
	Create(ctx context.Context, d tasks.Draft) (int64, error)
}

// Step is the current position of a task-creation session.
type Step int

const (
	StepChoosingAssignee Step = iota
	StepEnteringDescription
	StepChoosingDeadlineMode
	StepEnteringCustomDate
)

func (s Step) String() string {
	switch s {
	case StepChoosingAssignee:
		return "choosing_assignee"
	case StepEnteringDescription:
		return "entering_description"
	case StepChoosingDeadlineMode:
		return "choosing_deadline_mode"
	case StepEnteringCustomDate:
		return "entering_custom_date"
	}
	return "unknown"
}

// Outcome marks how a session ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCommitted
	OutcomeCancelled
)

// Session is the ephemeral per-user draft state. One active session per
// initiating user; starting a new flow silently replaces the old one.
type Session struct {
	Creator string
	Step    Step
	Draft   tasks.Draft
	Updated time.Time
}

// Result is what a conversational turn produces: replies for the
// initiating chat, notification intents for the dispatcher, and the id
// of a committed task when the flow finished.
type Result struct {
	Replies       []string
	Notifications []notify.Notification
	Outcome       Outcome
	TaskID        int64
}

func (r *Result) reply(format string, args ...any) {
	r.Replies = append(r.Replies, fmt.Sprintf(format, args...))
}

// Manager owns the sessions map and drives the state machine. The store
// and user directory are injected; the clock too, so tests can pin
// "today".
type Manager struct {
	dir   *directory.Directory
	store TaskStore
	now   func() time.Time
	ttl   time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a Manager. ttl 0 disables session expiry.
func NewManager(dir *directory.Directory, store TaskStore, ttl time.Duration, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		dir:      dir,
		store:    store,
		now:      now,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Active reports whether the user has a live (non-expired) session.
func (m *Manager) Active(creator string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[creator]
	if !ok {
		return false
	}
	if m.expired(s) {
		delete(m.sessions, creator)
		return false
	}
	return true
}

// Start begins (or restarts) the task-creation flow for a user.
func (m *Manager) Start(creator string) Result {
	m.mu.Lock()
	m.sessions[creator] = &Session{
		Creator: creator,
		Step:    StepChoosingAssignee,
		Updated: m.now(),
	}
	m.mu.Unlock()

	var res Result
	res.reply("Who is this task for? Pick one: %s", m.assigneeChoices())
	return res
}

// Cancel aborts the user's session, if any.
func (m *Manager) Cancel(creator string) Result {
	m.mu.Lock()
	_, had := m.sessions[creator]
	delete(m.sessions, creator)
	m.mu.Unlock()

	var res Result
	if !had {
		res.reply("Nothing to cancel.")
		return res
	}
	res.Outcome = OutcomeCancelled
	res.reply("Task creation cancelled.")
	return res
}

// Handle feeds one inbound input (free text or a typed selection) into
// the user's session. Malformed input never advances the step; the user
// is re-prompted in place.
func (m *Manager) Handle(ctx context.Context, creator, input string) (Result, bool) {
	m.mu.Lock()
	s, ok := m.sessions[creator]
	if ok && m.expired(s) {
		delete(m.sessions, creator)
		m.mu.Unlock()
		var res Result
		res.reply("That task flow expired. Send /task to start over.")
		return res, true
	}
	m.mu.Unlock()
	if !ok {
		return Result{}, false
	}

	res, commit := m.advance(s, strings.TrimSpace(input))
	if commit {
		m.commit(ctx, s, &res)
	}

	m.mu.Lock()
	if res.Outcome == OutcomeCommitted {
		delete(m.sessions, creator)
	} else {
		s.Updated = m.now()
	}
	m.mu.Unlock()
	return res, true
}

// advance is the transition function: (step, draft, input) -> (new step,
// new draft, replies). It mutates the session but never touches the
// store; the returned flag asks the caller to commit the finished draft.
func (m *Manager) advance(s *Session, input string) (Result, bool) {
	var res Result
	switch s.Step {
	case StepChoosingAssignee:
		u, ok := m.dir.Resolve(input)
		if !ok {
			res.reply("I don't know %q. Pick one of: %s", input, m.assigneeChoices())
			return res, false
		}
		s.Draft.Assignee = u.Key
		s.Draft.Creator = s.Creator
		s.Step = StepEnteringDescription
		res.reply("What needs to be done for %s?", u.Name)
		return res, false

	case StepEnteringDescription:
		if input == "" {
			res.reply("The description can't be empty. What needs to be done?")
			return res, false
		}
		s.Draft.Text = input
		s.Step = StepChoosingDeadlineMode
		res.reply("When is it due? Reply with: today, tomorrow, or custom")
		return res, false

	case StepChoosingDeadlineMode:
		today := m.today()
		switch strings.ToLower(input) {
		case "today":
			s.Draft.Deadline = tasks.FormatDate(today)
			return res, true
		case "tomorrow":
			s.Draft.Deadline = tasks.FormatDate(today.AddDate(0, 0, 1))
			return res, true
		case "custom":
			s.Step = StepEnteringCustomDate
			res.reply("Enter the deadline as YYYY-MM-DD.")
			return res, false
		default:
			res.reply("Please reply with one of: today, tomorrow, custom")
			return res, false
		}

	case StepEnteringCustomDate:
		d, err := tasks.ParseDate(input)
		if err != nil {
			res.reply("%q is not a valid date. Use YYYY-MM-DD, e.g. %s.", input, tasks.FormatDate(m.today()))
			return res, false
		}
		s.Draft.Deadline = tasks.FormatDate(d)
		return res, true
	}
	res.reply("Something went wrong. Send /task to start over.")
	return res, false
}

// commit persists the finished draft and assembles the confirmation
// effects. A store failure keeps the session intact so the same step can
// be retried; the user just sees a generic failure.
func (m *Manager) commit(ctx context.Context, s *Session, res *Result) {
	id, err := m.store.Create(ctx, s.Draft)
	if err != nil {
		slog.Error("failed to save task", "creator", s.Creator, "error", err)
		res.reply("Sorry, I couldn't save the task. Please try that again.")
		return
	}

	assignee := s.Draft.Assignee
	if u, ok := m.dir.Resolve(assignee); ok {
		assignee = u.Name
	}
	creator := s.Creator
	if u, ok := m.dir.Resolve(creator); ok {
		creator = u.Name
	}

	res.Outcome = OutcomeCommitted
	res.TaskID = id
	res.reply("Task #%d created: %s (assignee %s, due %s)", id, s.Draft.Text, assignee, s.Draft.Deadline)
	res.Notifications = append(res.Notifications,
		notify.ToBroadcast(fmt.Sprintf("📌 New task #%d: %s — assigned to %s by %s, due %s",
			id, s.Draft.Text, assignee, creator, s.Draft.Deadline)),
		notify.ToUser(s.Draft.Assignee, fmt.Sprintf("📌 %s assigned you task #%d: %s (due %s)",
			creator, id, s.Draft.Text, s.Draft.Deadline)),
	)
	slog.Info("task created", "task_id", id, "assignee", s.Draft.Assignee, "creator", s.Creator, "deadline", s.Draft.Deadline)
}

func (m *Manager) assigneeChoices() string {
	return strings.Join(m.dir.Keys(), ", ")
}

func (m *Manager) today() time.Time {
	y, mo, d := m.now().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func (m *Manager) expired(s *Session) bool {
	return m.ttl > 0 && m.now().Sub(s.Updated) > m.ttl
}
