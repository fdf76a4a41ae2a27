package intake

import (
	"context"
	"fmt"

	"github.com/italolelis/file_poller/internal/logctx"
)

// Notifier delivers a short human readable message.
type Notifier interface {
	Notify(ctx context.Context, content string) error
}

// NotifyListener reports rolled back files and relocation failures.
// Committed files are not announced.
type NotifyListener struct {
	notifier Notifier
}

func NewNotifyListener(n Notifier) *NotifyListener {
	return &NotifyListener{notifier: n}
}

func (n *NotifyListener) OnOutcome(ctx context.Context, out Outcome) {
	msg, ok := notificationFor(out)
	if !ok {
		return
	}

	if err := n.notifier.Notify(ctx, msg); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to send notification", "err", err)
	}
}

func notificationFor(out Outcome) (string, bool) {
	switch {
	case out.RelocateErr != nil:
		return fmt.Sprintf("⚠️ [%s] %s could not be moved to %s: %v", out.Lane, out.Ref.Name, out.Destination, out.RelocateErr), true
	case !out.Committed():
		return fmt.Sprintf("❌ [%s] %s moved to failed: %v", out.Lane, out.Ref.Name, out.Err), true
	default:
		return "", false
	}
}
