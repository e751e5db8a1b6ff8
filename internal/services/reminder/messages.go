package reminder

import (
	"fmt"
	"strings"
	"time"

	"herald/internal/storage"
	"herald/pkg/tgui"
)

const eventDateFormat = "02.01.2006 15:04"

const joinPrompt = "\n\nWant to register?"

func renderReminder(ev *storage.Event, diff time.Duration) string {
	return fmt.Sprintf(
		"💡 <b>Event:</b> %s\n\n"+
			"<i>%s</i>\n\n"+
			"📅 <b>Date:</b> %s\n\n"+
			"⏰ Starts in %s!",
		tgui.Esc(ev.Name), tgui.Esc(ev.Description),
		ev.StartsAt.Format(eventDateFormat), formatDelta(diff))
}

func renderCompletion(ev *storage.Event) string {
	return fmt.Sprintf(
		"🔔 <b>Event finished!</b>\n\n"+
			"📌 <b>Name:</b> %s\n\n"+
			"🗓 <b>Date:</b> %s\n\n"+
			"📖 <b>Description:</b> <i>%s</i>",
		tgui.Esc(ev.Name), ev.StartsAt.Format(eventDateFormat), tgui.Esc(ev.Description))
}

// formatDelta renders a duration as days and hours, adding minutes only when
// less than a day remains.
func formatDelta(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if days == 0 && minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 {
		return "less than a minute"
	}
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
