package notify

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/otpauth"
)

// LogNotifier writes deliveries to a logger instead of sending them.
type LogNotifier struct {
	logger *slog.Logger

	// RevealCode includes the plaintext code in the log line. Production
	// engines refuse notifiers with this set.
	RevealCode bool
}

func NewLogNotifier(logger *slog.Logger, revealCode bool) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify.log"), RevealCode: revealCode}
}

func (l *LogNotifier) Notify(ctx context.Context, n otpauth.Notification) error {
	msg := NewMessage(n)

	attrs := []any{
		"channel", msg.Channel,
		"recipient", msg.Recipient,
		"purpose", msg.Purpose,
		"subject", msg.Subject,
		"ttl_minutes", msg.TTLMinutes,
	}
	if l.RevealCode {
		attrs = append(attrs, "code", msg.Code)
	}

	l.logger.InfoContext(ctx, "otp notification", attrs...)
	return nil
}

// RevealsCodes reports whether log lines carry plaintext codes.
func (l *LogNotifier) RevealsCodes() bool {
	return l.RevealCode
}
