package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"taskherd/src/internal/config"
	"taskherd/src/internal/directory"
	"taskherd/src/internal/notify"
	"taskherd/src/internal/storage"
	"taskherd/src/internal/tasks"
)

func setupGateway(t *testing.T) (*Gateway, *[]notify.Notification) {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := directory.New(map[string]directory.User{
		"alice": {Address: "alice_irc", Name: "Alice"},
		"bob":   {Address: "bob_irc", Name: "Bob"},
	})
	cfg := &config.Config{}
	cfg.Conversation.TTLMinutes = 60
	cfg.Remind.Hour = 9

	gw := New(cfg, st, dir)
	var sent []notify.Notification
	gw.Hub.AddObserver(func(n notify.Notification) { sent = append(sent, n) })
	return gw, &sent
}

func say(t *testing.T, gw *Gateway, user directory.User, msg string) []string {
	t.Helper()
	ctx := context.Background()
	replies, notifications := gw.route(ctx, user, msg)
	gw.Hub.DispatchAll(ctx, notifications)
	return replies
}

func bob(gw *Gateway) directory.User {
	u, _ := gw.Directory.Resolve("bob")
	return u
}

func TestUnknownCommandHint(t *testing.T) {
	gw, _ := setupGateway(t)
	replies := say(t, gw, bob(gw), "what's up")
	if len(replies) != 1 || !strings.Contains(replies[0], "/task") {
		t.Errorf("expected hint reply, got %v", replies)
	}
}

func TestHelp(t *testing.T) {
	gw, _ := setupGateway(t)
	replies := say(t, gw, bob(gw), "/help")
	if len(replies) != 1 || !strings.Contains(replies[0], "/done") {
		t.Errorf("expected help text, got %v", replies)
	}
}

func TestEndToEnd_CreateThenRemind(t *testing.T) {
	gw, sent := setupGateway(t)
	u := bob(gw)

	say(t, gw, u, "/task")
	say(t, gw, u, "alice")
	say(t, gw, u, "Ship report")
	replies := say(t, gw, u, "today")

	if len(replies) == 0 || !strings.Contains(replies[0], "#1") {
		t.Fatalf("expected creation confirmation for #1, got %v", replies)
	}
	if len(*sent) != 2 {
		t.Fatalf("creation should broadcast and ping the assignee, got %d", len(*sent))
	}

	// The sweep on the same day classifies it due-today and re-notifies.
	*sent = nil
	report, err := gw.RunReminders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.DueToday != 1 || report.Overdue != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if len(*sent) != 2 {
		t.Fatalf("expected 2 reminder notifications, got %d", len(*sent))
	}
	for _, n := range *sent {
		if !strings.Contains(n.Text, "#1") || !strings.Contains(n.Text, "Ship report") {
			t.Errorf("reminder should reference the task: %q", n.Text)
		}
	}

	// Second run the same day re-emits (no dedupe by default).
	report, err = gw.RunReminders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.DueToday != 1 || len(*sent) != 4 {
		t.Errorf("second run should repeat the nudge: report=%+v sent=%d", report, len(*sent))
	}
}

func TestDoneCommand(t *testing.T) {
	gw, sent := setupGateway(t)
	u := bob(gw)

	id, err := gw.Storage.Create(context.Background(), tasks.Draft{
		Assignee: "bob", Creator: "alice", Text: "fix bug", Deadline: tasks.FormatDate(time.Now()),
	})
	if err != nil {
		t.Fatal(err)
	}

	replies := say(t, gw, u, "/done 1")
	if !strings.Contains(replies[0], "completed") {
		t.Errorf("expected completion confirmation, got %v", replies)
	}
	if len(*sent) != 1 || !(*sent)[0].Broadcast {
		t.Errorf("completion should broadcast, got %+v", *sent)
	}

	got, err := gw.Storage.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != tasks.StatusCompleted {
		t.Error("task should be completed")
	}

	// Repeat completion and unknown ids surface as a user message.
	replies = say(t, gw, u, "/done 1")
	if !strings.Contains(replies[0], "already completed") {
		t.Errorf("expected not-found message, got %v", replies)
	}
	replies = say(t, gw, u, "/done 999")
	if !strings.Contains(replies[0], "doesn't exist") {
		t.Errorf("expected not-found message, got %v", replies)
	}
	replies = say(t, gw, u, "/done nope")
	if !strings.Contains(replies[0], "Usage") {
		t.Errorf("expected usage message, got %v", replies)
	}
}

func TestListCommand(t *testing.T) {
	gw, _ := setupGateway(t)
	u := bob(gw)
	ctx := context.Background()

	replies := say(t, gw, u, "/list")
	if !strings.Contains(replies[0], "Nothing") {
		t.Errorf("expected empty list message, got %v", replies)
	}

	gw.Storage.Create(ctx, tasks.Draft{Assignee: "bob", Creator: "alice", Text: "mine", Deadline: "2026-09-01"})
	gw.Storage.Create(ctx, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "hers", Deadline: "2026-09-02"})

	replies = say(t, gw, u, "/list")
	if !strings.Contains(replies[0], "mine") || strings.Contains(replies[0], "hers") {
		t.Errorf("default list is the caller's tasks: %v", replies)
	}

	replies = say(t, gw, u, "/list all")
	if !strings.Contains(replies[0], "mine") || !strings.Contains(replies[0], "hers") {
		t.Errorf("list all spans assignees: %v", replies)
	}
}

func TestUnknownSenderRejected(t *testing.T) {
	gw, _ := setupGateway(t)
	// HandleInbound resolves by chat address; an unknown one is refused
	// without panicking even with no transport wired.
	gw.HandleInbound("stranger", "stranger", "/task")
	if gw.Storage == nil {
		t.Fatal("gateway should survive unknown senders")
	}
}

func TestCancelCommand(t *testing.T) {
	gw, _ := setupGateway(t)
	u := bob(gw)

	say(t, gw, u, "/task")
	replies := say(t, gw, u, "/cancel")
	if !strings.Contains(replies[0], "cancelled") {
		t.Errorf("expected cancellation, got %v", replies)
	}
	// Free text afterwards has no session to feed.
	replies = say(t, gw, u, "alice")
	if !strings.Contains(replies[0], "/task") {
		t.Errorf("expected hint after cancel, got %v", replies)
	}
}
