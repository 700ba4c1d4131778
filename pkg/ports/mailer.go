package ports

import "context"

// Email describes a confirmation message handed to the mail collaborator.
// Template fields override the active template's defaults when set.
type Email struct {
	To       string
	Subject  string
	Template string
	Data     map[string]string
}

// Mailer sends confirmation email. Implementations are best-effort
// collaborators: failures are logged by the caller, never surfaced to
// the visitor.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}
