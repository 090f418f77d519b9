package scheduling

import "context"

// EmailSender dispatches one notification. A send failure is fatal to that
// dispatch only, never to the booking that scheduled it.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}
