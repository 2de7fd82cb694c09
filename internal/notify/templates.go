package notify

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// Kind names a notification template.
type Kind string

const (
	PendingTransaction  Kind = "pending_transaction"
	TransactionApproved Kind = "transaction_approved"
	TransactionRejected Kind = "transaction_rejected"
	TransactionExpired  Kind = "transaction_expired"
	EventCancelled      Kind = "event_cancelled"
)

var subjects = map[Kind]string{
	PendingTransaction:  "New pending transaction for %s",
	TransactionApproved: "Ticket confirmed for %s",
	TransactionRejected: "Ticket claim rejected for %s",
	TransactionExpired:  "Ticket claim expired for %s",
	EventCancelled:      "%s has been cancelled",
}

//go:embed templates/*.md
var templateFS embed.FS

// Data is what the templates can reference.
type Data struct {
	Event    model.Event
	Buyer    model.Contact
	Amount   string
	Deadline string
	BaseURL  string
}

// EventDate formats the event date for display.
func (d Data) EventDate() string { return d.Event.EventDate.UTC().Format("Mon 2 Jan 2006 15:04 MST") }

// Renderer turns a Kind plus Data into a Message.  Templates are written
// in Markdown and converted to HTML.
type Renderer struct {
	baseURL string
	tmpl    *template.Template
	md      goldmark.Markdown
}

// NewRenderer parses the embedded templates.
func NewRenderer(baseURL string) (*Renderer, error) {
	tmpl, err := template.New("notify").
		Funcs(template.FuncMap{"md": escapeMarkdown}).
		ParseFS(templateFS, "templates/*.md")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{
		baseURL: baseURL,
		tmpl:    tmpl,
		md:      goldmark.New(goldmark.WithExtensions(extension.Linkify)),
	}, nil
}

// Render builds the message for kind addressed to to.
func (r *Renderer) Render(kind Kind, to string, data Data) (Message, error) {
	subject, ok := subjects[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}
	data.BaseURL = r.baseURL

	var src bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&src, string(kind)+".md", data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}
	var html bytes.Buffer
	if err := r.md.Convert(src.Bytes(), &html); err != nil {
		return Message{}, fmt.Errorf("markdown %s: %w", kind, err)
	}
	return NewMessage(to, fmt.Sprintf(subject, data.Event.Name), html.String()), nil
}

// escapeMarkdown makes user-supplied text render literally. Every ASCII
// punctuation character is backslash-escaped and line breaks become spaces.
func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\r' || r == '\n':
			b.WriteByte(' ')
		case strings.ContainsRune(markdownPunct, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

const markdownPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Deadline formats t for display in a template.
func Deadline(t time.Time) string { return t.UTC().Format("15:04 MST") }
