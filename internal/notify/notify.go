package notify

import (
	"context"
	"os/exec"
	"time"

	log "log/slog"
)

// Send pushes a desktop notification, best effort. Headless setups just get
// a debug line.
func Send(summary, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "notify-send", "--app-name=ava", summary, body)
	if err := cmd.Run(); err != nil {
		log.Debug("Desktop notification failed", "err", err)
	}
}
