// Package tilena turns Tilena notification emails into Azure DevOps bugs.
package tilena

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

const (
	UnknownID    = "Unknown"
	DefaultTitle = "Incidencia desde Tilena"

	maxDescriptionRunes = 2000
)

var ticketIDPattern = regexp.MustCompile(`(?i)(?:id[=:\s]+|#)(\d{4,})`)

// Ticket is what a notification email says about a Tilena ticket.
type Ticket struct {
	ID    string
	URL   string
	Title string
}

// Extractor finds ticket data in emails for one Tilena installation.
type Extractor struct {
	baseURL string
	urlRe   *regexp.Regexp
}

// NewExtractor builds an extractor for ticketBaseURL, e.g.
// https://tilena.example.com/front/ticket.form.php. Links to any page of that host are
// recognised in email bodies.
func NewExtractor(ticketBaseURL string) (*Extractor, error) {
	u, err := url.Parse(strings.TrimSpace(ticketBaseURL))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid ticket base url %q", ticketBaseURL)
	}
	re, err := regexp.Compile(`https?://` + regexp.QuoteMeta(u.Host) + `[^\s<>"\)]+`)
	if err != nil {
		return nil, err
	}
	return &Extractor{baseURL: u.String(), urlRe: re}, nil
}

// Extract looks for the ticket id in the body first, then in the subject.
func (e *Extractor) Extract(body, subject string) Ticket {
	t := Ticket{ID: UnknownID}
	if m := ticketIDPattern.FindStringSubmatch(body); m != nil {
		t.ID = m[1]
	} else if m := ticketIDPattern.FindStringSubmatch(subject); m != nil {
		t.ID = m[1]
	}

	if link := e.urlRe.FindString(body); link != "" {
		t.URL = link
	} else {
		t.URL = e.baseURL + "?id=" + url.QueryEscape(t.ID)
	}

	title := strings.ReplaceAll(subject, "[TILENA]", "")
	title = strings.TrimSpace(strings.ReplaceAll(title, "TILENA", ""))
	if title == "" {
		title = DefaultTitle
	}
	t.Title = title
	return t
}

// WorkItemTitle is the DevOps title for a ticket: "[Tilena #id] title".
func (t Ticket) WorkItemTitle() string {
	return fmt.Sprintf("[Tilena #%s] %s", t.ID, t.Title)
}

// DescriptionHTML renders the bug description with a link back to Tilena and the first
// 2000 characters of the email, escaped.
func (t Ticket) DescriptionHTML(body string) string {
	r := []rune(body)
	if len(r) > maxDescriptionRunes {
		r = r[:maxDescriptionRunes]
	}
	link := html.EscapeString(t.URL)
	var b strings.Builder
	b.WriteString("<div>")
	b.WriteString("<h3>🎫 Incidencia desde Tilena</h3>")
	fmt.Fprintf(&b, "<p><strong>ID Tilena:</strong> #%s</p>", html.EscapeString(t.ID))
	fmt.Fprintf(&b, `<p><strong>URL:</strong> <a href="%s" target="_blank">%s</a></p>`, link, link)
	b.WriteString("<hr/>")
	b.WriteString("<h4>Descripción original:</h4>")
	b.WriteString(`<div style="background: #f5f5f5; padding: 10px; border-left: 3px solid #0078d4;">`)
	b.WriteString("<pre>")
	b.WriteString(html.EscapeString(string(r)))
	b.WriteString("</pre></div></div>")
	return b.String()
}
