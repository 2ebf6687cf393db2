package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"taskherd/src/internal/channels"
	"taskherd/src/internal/config"
	"taskherd/src/internal/conversation"
	"taskherd/src/internal/cron"
	"taskherd/src/internal/directory"
	"taskherd/src/internal/notify"
	"taskherd/src/internal/storage"
	"taskherd/src/internal/tasks"
)

// Gateway wires the chat channels to the conversation state machine,
// the task store, the notification hub, and the reminder scheduler.
type Gateway struct {
	Config    *config.Config
	Storage   *storage.Storage
	Directory *directory.Directory
	Hub       *notify.Hub
	Channels  map[string]channels.Channel

	convMgr  *conversation.Manager
	reminder *cron.Reminder
	irc      *channels.IRC
}

func New(cfg *config.Config, st *storage.Storage, dir *directory.Directory) *Gateway {
	gw := &Gateway{
		Config:    cfg,
		Storage:   st,
		Directory: dir,
		Hub:       notify.NewHub(dir),
		Channels:  make(map[string]channels.Channel),
	}

	ttl := time.Duration(cfg.Conversation.TTLMinutes) * time.Minute
	gw.convMgr = conversation.NewManager(dir, st, ttl, nil)
	gw.reminder = cron.NewReminder(st, gw.Hub, cfg.Remind.Dedupe, nil)

	if cfg.Channels.IRC.Enabled {
		ch := channels.NewIRC(cfg.Channels.IRC)
		gw.Channels["irc"] = ch
		gw.irc = ch
		gw.Hub.AddSink(ch, cfg.Channels.IRC.Broadcast, true)
		ch.SetMessageHandler(gw.HandleInbound)
		slog.Info("irc channel initialized", "broadcast", cfg.Channels.IRC.Broadcast)
	}

	if cfg.Channels.Whatsapp.Enabled {
		ch := channels.NewWhatsapp(cfg.StorageDir)
		if ch != nil {
			gw.Channels["whatsapp"] = ch
			gw.Hub.AddSink(ch, cfg.Channels.Whatsapp.Broadcast, false)
			slog.Info("whatsapp channel initialized")
		} else {
			slog.Warn("failed to initialize whatsapp channel")
		}
	}

	return gw
}

// Start connects the transports and schedules the daily reminder.
func (gw *Gateway) Start(ctx context.Context) error {
	if err := gw.reminder.Start(gw.Config.Remind.Hour); err != nil {
		return err
	}
	if gw.irc != nil {
		go func() {
			if err := gw.irc.Run(); err != nil {
				slog.Error("IRC run error", "error", err)
			}
		}()
	}
	return nil
}

func (gw *Gateway) Stop() {
	gw.reminder.Stop()
}

// HandleInbound processes one chat line. from is the sender's chat
// address, target is where replies go.
func (gw *Gateway) HandleInbound(from, target, msg string) {
	ctx := context.Background()
	user, ok := gw.Directory.ResolveAddress(from)
	if !ok {
		slog.Warn("message from unknown address", "from", from)
		gw.replyTo(ctx, target, "Sorry, you're not on my team roster.")
		return
	}

	replies, notifications := gw.route(ctx, user, msg)
	for _, r := range replies {
		gw.replyTo(ctx, target, r)
	}
	gw.Hub.DispatchAll(ctx, notifications)
}

// route turns one inbound line into replies and notification intents.
func (gw *Gateway) route(ctx context.Context, user directory.User, msg string) ([]string, []notify.Notification) {
	msg = strings.TrimSpace(msg)
	cmd, rest, _ := strings.Cut(msg, " ")

	switch strings.ToLower(cmd) {
	case "/task":
		res := gw.convMgr.Start(user.Key)
		return res.Replies, res.Notifications
	case "/cancel":
		res := gw.convMgr.Cancel(user.Key)
		return res.Replies, res.Notifications
	case "/done":
		return gw.completeTask(ctx, user, strings.TrimSpace(rest))
	case "/list":
		return gw.listTasks(ctx, user, strings.TrimSpace(rest)), nil
	case "/remind":
		if _, err := gw.reminder.Run(ctx); err != nil {
			return []string{"Reminder check failed, see the logs."}, nil
		}
		return []string{"Reminder check done."}, nil
	case "/help":
		return []string{helpText}, nil
	}

	// Free text: feed the active conversation, if any.
	if res, ok := gw.convMgr.Handle(ctx, user.Key, msg); ok {
		return res.Replies, res.Notifications
	}
	return []string{"I didn't catch that. Send /task to create a task or /help for commands."}, nil
}

const helpText = "Commands: /task (create a task), /done <id>, /list [all|done], /remind, /cancel, /help"

func (gw *Gateway) completeTask(ctx context.Context, user directory.User, arg string) ([]string, []notify.Notification) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return []string{"Usage: /done <task id>"}, nil
	}
	t, err := gw.Storage.GetByID(ctx, id)
	if err == nil {
		err = gw.Storage.MarkCompleted(ctx, id)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []string{fmt.Sprintf("Task #%d doesn't exist or is already completed.", id)}, nil
		}
		slog.Error("failed to complete task", "task_id", id, "error", err)
		return []string{"Sorry, that didn't work. Please try again."}, nil
	}
	return []string{fmt.Sprintf("Task #%d marked completed.", id)},
		[]notify.Notification{notify.ToBroadcast(fmt.Sprintf("✅ Task #%d completed by %s: %s", id, user.Name, t.Text))}
}

func (gw *Gateway) listTasks(ctx context.Context, user directory.User, arg string) []string {
	var (
		list []*tasks.Task
		err  error
		head string
	)
	switch strings.ToLower(arg) {
	case "all":
		list, err = gw.Storage.ListAll(ctx, tasks.StatusPending)
		head = "Open tasks:"
	case "done":
		list, err = gw.Storage.ListByAssignee(ctx, user.Key, tasks.StatusCompleted)
		head = "Your completed tasks:"
	default:
		list, err = gw.Storage.ListByAssignee(ctx, user.Key, tasks.StatusPending)
		head = "Your open tasks:"
	}
	if err != nil {
		slog.Error("failed to list tasks", "user", user.Key, "error", err)
		return []string{"Sorry, I couldn't read the task list."}
	}
	if len(list) == 0 {
		return []string{"Nothing there."}
	}

	lines := []string{head}
	for _, t := range list {
		assignee := t.Assignee
		if u, ok := gw.Directory.Resolve(t.Assignee); ok {
			assignee = u.Name
		}
		lines = append(lines, fmt.Sprintf("• #%d [%s] %s — %s", t.ID, t.Deadline, t.Text, assignee))
	}
	return []string{strings.Join(lines, "\n")}
}

// replyTo sends one reply on the originating channel. Failures are
// logged and swallowed like any other delivery error.
func (gw *Gateway) replyTo(ctx context.Context, target, msg string) {
	if gw.irc == nil {
		slog.Info("reply (no transport)", "target", target, "msg", msg)
		return
	}
	if err := gw.irc.Send(ctx, target, msg); err != nil {
		slog.Error("failed to send reply", "target", target, "error", err)
	}
}

// RunReminders triggers a manual sweep, used by the admin API.
func (gw *Gateway) RunReminders(ctx context.Context) (cron.Report, error) {
	return gw.reminder.Run(ctx)
}

func (gw *Gateway) ChannelStatus(channel string) map[string]any {
	if ch, ok := gw.Channels[channel]; ok {
		return ch.Status()
	}
	return map[string]any{"error": fmt.Sprintf("channel %q not found", channel)}
}

func (gw *Gateway) ChannelEnroll(ctx context.Context, channel string) error {
	if ch, ok := gw.Channels[channel]; ok {
		return ch.Enroll(ctx)
	}
	return fmt.Errorf("channel %q not found", channel)
}
