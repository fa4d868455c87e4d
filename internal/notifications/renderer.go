package notifications

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RenderText builds the human-readable message shared by all chat channels.
func RenderText(p Payload) string {
	var b strings.Builder

	b.WriteString(eventEmoji(p.Event))
	b.WriteString(" ")
	b.WriteString(p.Title)
	b.WriteString("\nStatus: ")
	b.WriteString(titleCase(p.Status))
	if p.Severity != "" {
		b.WriteString("\nSeverity: ")
		b.WriteString(titleCase(p.Severity))
	}
	if p.Link != "" {
		b.WriteString("\n")
		b.WriteString(p.Link)
	}

	return b.String()
}

func eventEmoji(event EventType) string {
	if event == EventIncidentCreated {
		return "🚨"
	}
	return "⚠️"
}

// titleCase turns "timed_out" into "Timed Out". A Caser is stateful, so one is built per call.
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}
