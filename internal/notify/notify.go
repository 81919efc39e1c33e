package notify

import (
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier delivers a short message to whoever owns a task.
type Notifier interface {
	Send(title, message string) error
}

// Desktop sends system notifications.
// On macOS, uses osascript to display notifications.
// On other platforms, this is a no-op.
type Desktop struct {
	Enabled bool
}

func (d *Desktop) Send(title, message string) error {
	if !d.Enabled {
		return nil
	}

	if runtime.GOOS != "darwin" {
		// Only macOS supported for now
		return nil
	}

	return sendMacOSNotification(title, message)
}

// sendMacOSNotification uses osascript to display a notification.
func sendMacOSNotification(title, message string) error {
	// Escape quotes in title and message
	title = strings.ReplaceAll(title, `"`, `\"`)
	message = strings.ReplaceAll(message, `"`, `\"`)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	cmd := exec.Command("osascript", "-e", script)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	return nil
}

// Log writes notifications to the process log. Used by the daemon on
// platforms without desktop notifications and in tests.
type Log struct{}

func (Log) Send(title, message string) error {
	log.Printf("notify: %s: %s", title, message)
	return nil
}

// FormatTaskWake formats a wake-trigger firing notification.
func FormatTaskWake(taskTitle, customerID, triggerKind string) (title, message string) {
	title = "⏰ Renewflow Task Awake"
	message = fmt.Sprintf("%s (%s) woke on %s trigger", taskTitle, customerID, triggerKind)
	return title, message
}

// FormatDecisionRequired formats a forced-decision notification sent
// when a task reaches its snooze ceiling.
func FormatDecisionRequired(taskTitle, customerID string) (title, message string) {
	title = "⚠️ Renewflow Decision Required"
	message = fmt.Sprintf("%s (%s) hit the snooze limit: complete, skip, or cancel", taskTitle, customerID)
	return title, message
}

// FormatAutoSkipped formats the notification sent when an abandoned
// decision is resolved as a skip.
func FormatAutoSkipped(taskTitle, customerID string) (title, message string) {
	title = "⏭️ Renewflow Task Auto-Skipped"
	message = fmt.Sprintf("%s (%s) was skipped after the decision window lapsed", taskTitle, customerID)
	return title, message
}
