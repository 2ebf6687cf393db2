package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"taskherd/src/internal/notify"
	"taskherd/src/internal/storage"
	"taskherd/src/internal/tasks"
)

// Classification of a pending task relative to today.
type Classification int

const (
	DueToday Classification = iota
	Overdue
)

func (c Classification) String() string {
	if c == Overdue {
		return "overdue"
	}
	return "due_today"
}

// Report summarizes one reminder sweep.
type Report struct {
	RunID    string `json:"run_id"`
	Scanned  int    `json:"scanned"`
	DueToday int    `json:"due_today"`
	Overdue  int    `json:"overdue"`
	Skipped  int    `json:"skipped"`
}

// Reminder is the deadline scheduler: a daily cron job plus a manual
// trigger. Each run reads all pending tasks, classifies them against
// today's date, and hands notification intents to the dispatcher. It
// never mutates task state.
type Reminder struct {
	st       *storage.Storage
	dispatch notify.Dispatcher
	now      func() time.Time
	dedupe   bool

	c     *cron.Cron
	entry cron.EntryID

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewReminder builds the scheduler. now may be nil for the wall clock.
// With dedupe enabled a (task, date, classification) triple is only
// announced once per process lifetime per day; by default every run
// re-emits, so a manual trigger after the daily run repeats the nudge.
func NewReminder(st *storage.Storage, dispatch notify.Dispatcher, dedupe bool, now func() time.Time) *Reminder {
	if now == nil {
		now = time.Now
	}
	return &Reminder{
		st:       st,
		dispatch: dispatch,
		now:      now,
		dedupe:   dedupe,
		c:        cron.New(),
		seen:     make(map[string]struct{}),
	}
}

// Start schedules the daily run at the given wall-clock hour.
func (r *Reminder) Start(hour int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("invalid reminder hour %d", hour)
	}
	spec := fmt.Sprintf("0 %d * * *", hour)
	entry, err := r.c.AddFunc(spec, func() {
		r.Run(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule daily reminder: %w", err)
	}
	r.entry = entry
	r.c.Start()
	slog.Info("reminder job scheduled", "hour", hour)
	return nil
}

func (r *Reminder) Stop() {
	r.c.Stop()
}

// Run performs one sweep. A malformed deadline on a single row is logged
// and skipped; it never aborts the rest of the scan.
func (r *Reminder) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.New().String()[:8]}

	pending, err := r.st.ListAll(ctx, tasks.StatusPending)
	if err != nil {
		slog.Error("reminder sweep failed to read tasks", "run_id", report.RunID, "error", err)
		return report, err
	}
	report.Scanned = len(pending)

	today := r.today()
	var batch []notify.Notification
	for _, t := range pending {
		deadline, err := t.DeadlineDate()
		if err != nil {
			slog.Error("task has malformed deadline, skipping", "run_id", report.RunID, "task_id", t.ID, "deadline", t.Deadline, "error", err)
			report.Skipped++
			continue
		}

		var class Classification
		switch {
		case deadline.Equal(today):
			class = DueToday
			report.DueToday++
		case deadline.Before(today):
			class = Overdue
			report.Overdue++
		default:
			continue
		}

		if r.dedupe && !r.markSeen(t.ID, today, class) {
			continue
		}
		batch = append(batch, remind(t, class)...)
	}

	notify.SendAll(ctx, r.dispatch, batch)
	slog.Info("reminder sweep finished", "run_id", report.RunID,
		"scanned", report.Scanned, "due_today", report.DueToday,
		"overdue", report.Overdue, "skipped", report.Skipped)
	return report, nil
}

// remind builds the broadcast + assignee pair for one classified task.
func remind(t *tasks.Task, class Classification) []notify.Notification {
	var broadcast, private string
	switch class {
	case DueToday:
		broadcast = fmt.Sprintf("⏰ Task #%d is due today: %s (assignee %s)", t.ID, t.Text, t.Assignee)
		private = fmt.Sprintf("⏰ Your task #%d is due today: %s", t.ID, t.Text)
	case Overdue:
		broadcast = fmt.Sprintf("🔥 Task #%d is overdue since %s: %s (assignee %s)", t.ID, t.Deadline, t.Text, t.Assignee)
		private = fmt.Sprintf("🔥 Your task #%d is overdue since %s: %s", t.ID, t.Deadline, t.Text)
	}
	return []notify.Notification{
		notify.ToBroadcast(broadcast),
		notify.ToUser(t.Assignee, private),
	}
}

func (r *Reminder) markSeen(id int64, today time.Time, class Classification) bool {
	key := fmt.Sprintf("%d|%s|%s", id, tasks.FormatDate(today), class)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	return true
}

func (r *Reminder) today() time.Time {
	y, m, d := r.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
