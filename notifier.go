package auth

import (
	"bytes"
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

const invitationEmailTemplate = "invitation_email"

// InvitationNotice is what an invitee needs to hear about
type InvitationNotice struct {
	Email         string
	Role          UserRole
	RedemptionURL string
	ExpiresAt     time.Time
}

// InvitationNotifier delivers invitations out of band. Delivery is best
// effort, failures are logged by the caller.
type InvitationNotifier interface {
	NotifyInvitation(ctx context.Context, notice InvitationNotice) error
}

// InvitationNotifierFunc adapts a function to InvitationNotifier.
type InvitationNotifierFunc func(ctx context.Context, notice InvitationNotice) error

func (f InvitationNotifierFunc) NotifyInvitation(ctx context.Context, notice InvitationNotice) error {
	if f == nil {
		return nil
	}
	return f(ctx, notice)
}

type noopNotifier struct{}

func (noopNotifier) NotifyInvitation(context.Context, InvitationNotice) error { return nil }

// LogNotifier renders the invitation e-mail body and writes it to the logger
// in place of an outbound mail transport.
type LogNotifier struct {
	engine *django.Engine
	logger Logger
}

// NewLogNotifier loads the embedded e-mail templates.
func NewLogNotifier(logger Logger) (*LogNotifier, error) {
	sub, err := fs.Sub(templatesFS, "data/templates")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open templates")
	}

	engine := django.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load templates")
	}

	return &LogNotifier{
		engine: engine,
		logger: normalizeLogger(logger),
	}, nil
}

// Render returns the e-mail body for the notice.
func (n *LogNotifier) Render(notice InvitationNotice) (string, error) {
	var buf bytes.Buffer
	err := n.engine.Render(&buf, invitationEmailTemplate, map[string]any{
		"email":      notice.Email,
		"role":       string(notice.Role),
		"invite_url": notice.RedemptionURL,
		"expires_at": notice.ExpiresAt.Format(time.RFC1123),
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render invitation email")
	}
	return buf.String(), nil
}

func (n *LogNotifier) NotifyInvitation(_ context.Context, notice InvitationNotice) error {
	body, err := n.Render(notice)
	if err != nil {
		return err
	}
	n.logger.Info("invitation email to %s:\n%s", notice.Email, body)
	return nil
}
