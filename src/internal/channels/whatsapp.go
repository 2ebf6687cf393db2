package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// Whatsapp is a send-only notification channel: reminders and creation
// announcements can reach a team group or individual JIDs, but task
// conversations stay on IRC.
type Whatsapp struct {
	mu     sync.Mutex
	client *whatsmeow.Client
	dbpath string
}

func NewWhatsapp(storageDir string) *Whatsapp {
	whatsappDir := filepath.Join(storageDir, "whatsapp")
	if err := os.MkdirAll(whatsappDir, 0755); err != nil {
		slog.Error("failed to create whatsapp dir", "error", err)
		return nil
	}
	dbpath := filepath.Join(whatsappDir, "whatsapp.db")
	dsn := "file:" + dbpath + "?_foreign_keys=on"

	ctx := context.Background()
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		slog.Error("failed to connect to whatsapp store", "error", err)
		return nil
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("failed to get device store", "error", err)
		return nil
	}

	client := whatsmeow.NewClient(deviceStore, nil)
	client.EnableAutoReconnect = true

	if client.Store.ID != nil {
		go func() {
			if err := client.Connect(); err != nil {
				slog.Error("whatsapp connect failed", "error", err)
			}
		}()
	} else {
		slog.Info("whatsapp not logged in, enroll to get a QR code")
	}

	return &Whatsapp{
		client: client,
		dbpath: dsn,
	}
}

func (w *Whatsapp) Name() string {
	return "whatsapp"
}

func (w *Whatsapp) Status() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]any{
		"connected": w.client.IsConnected(),
		"logged_in": w.client.Store.ID != nil,
	}
}

func (w *Whatsapp) Enroll(ctx context.Context) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if err := client.Logout(ctx); err != nil {
		return fmt.Errorf("whatsapp logout: %w", err)
	}
	slog.Info("whatsapp logging out, starting new connect for QR")
	go func() {
		qrChan, _ := client.GetQRChannel(ctx)
		for evt := range qrChan {
			if evt.Event == "code-ok" {
				slog.Info("whatsapp login successful")
				break
			}
			slog.Info("whatsapp QR code", "code", evt.Code)
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		}
	}()
	return client.Connect()
}

func (w *Whatsapp) Send(ctx context.Context, target string, msg string) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	jid, err := types.ParseJID(target)
	if err != nil {
		return fmt.Errorf("invalid JID %s: %w", target, err)
	}
	_, err = client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(msg),
	})
	return err
}
