// Package notify delivers invitation notifications. Delivery is
// fire-and-forget: a failed send is logged and never fails the caller.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
)

// Notifier sends the invitation token to the invitee.
type Notifier interface {
	SendInvitation(ctx context.Context, inv domain.Invitation, token, acceptURL string) error
}

// LogNotifier writes invitations to the log instead of sending mail.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) SendInvitation(ctx context.Context, inv domain.Invitation, token, acceptURL string) error {
	log := n.Logger
	if log == nil {
		log = slogx.FromContext(ctx)
	}
	log.Info("invitation notification",
		slog.String("invitation_id", inv.ID),
		slog.String("email", inv.Email),
		slog.String("role", string(inv.Role)),
		slog.String("accept_url", acceptURL),
		slog.Time("expires_at", inv.ExpiresAt),
	)
	return nil
}

// Dispatcher runs notifications in the background.
type Dispatcher struct {
	Notifier Notifier

	wg sync.WaitGroup
}

// Dispatch sends asynchronously. The request context's values are kept but
// its cancellation is not, so the send outlives the request.
func (d *Dispatcher) Dispatch(ctx context.Context, inv domain.Invitation, token, acceptURL string) {
	if d == nil || d.Notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Notifier.SendInvitation(ctx, inv, token, acceptURL); err != nil {
			slogx.FromContext(ctx).Error("failed to send invitation",
				slog.String("invitation_id", inv.ID), slog.Any("error", err))
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
