package channels

import (
	"context"
)

type Channel interface {
	Name() string
	Status() map[string]any
	Enroll(ctx context.Context) error
	Send(ctx context.Context, target string, msg string) error
}
