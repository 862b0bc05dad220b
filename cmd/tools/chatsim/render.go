package main

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/courseai/courseai/backend/internal/model/chat"
	"github.com/courseai/courseai/backend/internal/widget"
)

var (
	breakTag   = regexp.MustCompile(`(?i)<br\s*/?>`)
	listTag    = regexp.MustCompile(`(?i)\s*</?ul[^>]*>`)
	itemTag    = regexp.MustCompile(`(?i)\s*<li[^>]*>`)
	anyTag     = regexp.MustCompile(`<[^>]+>`)
	blankLines = regexp.MustCompile(`\n{3,}`)
	lineIndent = regexp.MustCompile(`(?m)^[ \t]+`)
)

// plainText flattens message markup for a terminal.
func plainText(markup string) string {
	s := breakTag.ReplaceAllString(markup, "\n")
	s = listTag.ReplaceAllString(s, "")
	s = itemTag.ReplaceAllString(s, "\n• ")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = lineIndent.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\n• ", "\n  • ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func formatEntry(entry widget.Entry) string {
	who := "CourseAI"
	if entry.Sender == chat.SenderUser {
		who = "You"
	}
	return fmt.Sprintf("[%s] %s: %s", entry.Timestamp, who, plainText(entry.Text))
}
