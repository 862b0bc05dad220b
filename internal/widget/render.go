package widget

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/courseai/courseai/backend/internal/model/chat"
)

// TypingIndicatorID is the fixed identifier of a controller's typing placeholder.
const TypingIndicatorID = "typingIndicator"

var entryTemplates = template.Must(template.New("entries").Parse(`
{{- define "user" -}}
<div class="message-container mb-3 fade-in" data-id="{{.ID}}">
    <div class="message user-message">
        <div class="message-content">
            <div class="message-bubble bg-primary text-white p-3 rounded-3">
                <p class="mb-0">{{.Text}}</p>
            </div>
            <small class="text-muted me-2">{{.Timestamp}}</small>
        </div>
        <div class="avatar-sm bg-secondary text-white ms-2">
            <i class="fas fa-user"></i>
        </div>
    </div>
</div>
{{- end -}}
{{- define "bot" -}}
<div class="message-container mb-3 fade-in" data-id="{{.ID}}">
    <div class="message bot-message">
        <div class="avatar-sm bg-primary text-white me-2">
            <i class="fas fa-robot"></i>
        </div>
        <div class="message-content">
            <div class="message-bubble bg-light p-3 rounded-3">
                <p class="mb-0">{{.Text}}</p>
            </div>
            <small class="text-muted ms-2">{{.Timestamp}}</small>
        </div>
    </div>
</div>
{{- end -}}
{{- define "typing" -}}
<div class="message-container mb-3 typing-indicator show" id="{{.}}">
    <div class="message bot-message">
        <div class="avatar-sm bg-primary text-white me-2">
            <i class="fas fa-robot"></i>
        </div>
        <div class="message-content">
            <div class="message-bubble bg-light p-3 rounded-3">
                <div class="typing-dots">
                    <span></span>
                    <span></span>
                    <span></span>
                </div>
            </div>
        </div>
    </div>
</div>
{{- end -}}
`))

var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape neutralises markup in user-supplied text. Only &, < and > are
// replaced; quotes are left as typed.
func Escape(text string) string {
	return markupEscaper.Replace(text)
}

type entryView struct {
	ID        string
	Text      template.HTML
	Timestamp string
}

// renderMessage produces the message container markup. msg.Text is inserted
// verbatim: user text is escaped before it becomes a Message and bot text
// comes from authored templates.
func renderMessage(msg chat.Message) string {
	name := "bot"
	if msg.Sender == chat.SenderUser {
		name = "user"
	}

	var buf bytes.Buffer
	view := entryView{ID: msg.ID, Text: template.HTML(msg.Text), Timestamp: msg.Timestamp}
	// Execution only fails on writer errors, which bytes.Buffer never returns.
	_ = entryTemplates.ExecuteTemplate(&buf, name, view)
	return buf.String()
}

func renderTyping(id string) string {
	var buf bytes.Buffer
	_ = entryTemplates.ExecuteTemplate(&buf, "typing", id)
	return buf.String()
}
