package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lrstanley/girc"

	"taskherd/src/internal/config"
)

// IRC is the primary chat transport: teammates talk to the bot in
// private messages (or by addressing it in a channel), and the
// configured broadcast channel receives team-wide announcements.
type IRC struct {
	cfg     config.IRCConfig
	client  *girc.Client
	handler func(from, target, message string)
	mu      sync.RWMutex
}

func NewIRC(cfg config.IRCConfig) *IRC {
	gcfg := girc.Config{
		Server: cfg.Host,
		Port:   cfg.Port,
		Nick:   cfg.Nick,
		User:   cfg.User,
		Name:   cfg.Realname,
		SSL:    cfg.TLS,
	}
	if cfg.Password != "" {
		gcfg.ServerPass = cfg.Password
	}

	client := girc.New(gcfg)

	i := &IRC{
		cfg:    cfg,
		client: client,
	}

	client.Handlers.Add(girc.CONNECTED, func(c *girc.Client, e girc.Event) {
		slog.Info("IRC connected", "server", cfg.Host)
		if cfg.NickServ.Enabled {
			c.Cmd.Message("NickServ", fmt.Sprintf("IDENTIFY %s", cfg.NickServ.Password))
		}
		if cfg.Broadcast != "" {
			c.Cmd.Join(cfg.Broadcast)
		}
	})

	client.Handlers.Add(girc.PRIVMSG, func(c *girc.Client, e girc.Event) {
		target := e.Params[0] // channel or nick
		msg := e.Last()
		from := e.Source.Name

		// Direct messages go straight to the bot. In the broadcast
		// channel, only lines addressed to the bot count; the rest is
		// team chatter.
		respTarget := from
		if strings.HasPrefix(target, "#") {
			prefix := c.GetNick() + ":"
			if !strings.HasPrefix(msg, prefix) {
				return
			}
			msg = strings.TrimSpace(strings.TrimPrefix(msg, prefix))
			respTarget = target
		}

		i.mu.RLock()
		h := i.handler
		i.mu.RUnlock()
		if h != nil {
			h(from, respTarget, msg)
		}
	})

	return i
}

func (i *IRC) Name() string {
	return "irc"
}

func (i *IRC) Status() map[string]any {
	return map[string]any{
		"connected": i.client.IsConnected(),
		"nick":      i.client.GetNick(),
		"server":    i.cfg.Host,
	}
}

func (i *IRC) Enroll(ctx context.Context) error {
	// IRC has no enrollment step; reuse this to (re)connect.
	go func() {
		if err := i.client.Connect(); err != nil {
			slog.Error("IRC connect error", "error", err)
		}
	}()
	return nil
}

func (i *IRC) Send(ctx context.Context, target string, msg string) error {
	for _, line := range strings.Split(msg, "\n") {
		i.client.Cmd.Message(target, line)
	}
	return nil
}

func (i *IRC) SetMessageHandler(handler func(from, target, message string)) {
	i.mu.Lock()
	i.handler = handler
	i.mu.Unlock()
}

func (i *IRC) Run() error {
	return i.client.Connect()
}
