package copilot

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
)

// ErrBadDraft is returned when the model reply cannot be read as a draft.
var ErrBadDraft = errors.New("model reply is not a valid draft")

// WorkItemDraft is a work item proposed by the model, not yet created in DevOps.
type WorkItemDraft struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Tags               []string `json:"tags"`
	Sources            []string `json:"sources,omitempty"`
}

// WikiDraft is a markdown wiki page proposed by the model.
type WikiDraft struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Sources []string `json:"sources,omitempty"`
}

// stringList accepts either a JSON array of strings or a single string with one item per line.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = cleanList(items)
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = cleanList(strings.Split(one, "\n"))
	return nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		it = strings.TrimLeft(it, "-*• ")
		it = strings.TrimSpace(it)
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

// extractJSON keeps the outermost {...} span of a model reply. Fences around the object fall
// outside the span, and fences inside its strings are left alone.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return stripFence(s)
}

// stripFence removes one ``` fence wrapping the whole text.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return ""
	}
	s = strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}

// ParseWorkItemDraft reads {title, description, acceptance_criteria, tags} from a model reply.
func ParseWorkItemDraft(reply string) (WorkItemDraft, error) {
	var raw struct {
		Title              string     `json:"title"`
		Description        string     `json:"description"`
		AcceptanceCriteria stringList `json:"acceptance_criteria"`
		Tags               stringList `json:"tags"`
	}
	if err := json.Unmarshal([]byte(extractJSON(reply)), &raw); err != nil {
		return WorkItemDraft{}, fmt.Errorf("%w: %v", ErrBadDraft, err)
	}
	d := WorkItemDraft{
		Title:              strings.TrimSpace(raw.Title),
		Description:        strings.TrimSpace(raw.Description),
		AcceptanceCriteria: raw.AcceptanceCriteria,
		Tags:               raw.Tags,
	}
	if d.Title == "" {
		return WorkItemDraft{}, fmt.Errorf("%w: title is empty", ErrBadDraft)
	}
	return d, nil
}

// ParseWikiDraft reads {title, content} from a model reply. A reply that is plain markdown
// is accepted too: its first heading becomes the title.
func ParseWikiDraft(reply string) (WikiDraft, error) {
	var raw struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(extractJSON(reply)), &raw); err == nil && strings.TrimSpace(raw.Content) != "" {
		d := WikiDraft{Title: strings.TrimSpace(raw.Title), Content: strings.TrimSpace(raw.Content)}
		if d.Title == "" {
			d.Title = markdownTitle(d.Content)
		}
		if d.Title == "" {
			return WikiDraft{}, fmt.Errorf("%w: title is empty", ErrBadDraft)
		}
		return d, nil
	}

	content := stripFence(reply)
	title := markdownTitle(content)
	if title == "" {
		return WikiDraft{}, fmt.Errorf("%w: no title in reply", ErrBadDraft)
	}
	return WikiDraft{Title: title, Content: content}, nil
}

func markdownTitle(md string) string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

// DescriptionHTML renders the draft as the HTML body of a work item.
func (d WorkItemDraft) DescriptionHTML() string {
	var b strings.Builder
	b.WriteString("<div>")
	for _, para := range strings.Split(d.Description, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br/>"))
		b.WriteString("</p>")
	}
	if len(d.AcceptanceCriteria) > 0 {
		b.WriteString("<h4>Criterios de aceptación</h4><ul>")
		for _, c := range d.AcceptanceCriteria {
			b.WriteString("<li>")
			b.WriteString(html.EscapeString(c))
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
	}
	if len(d.Sources) > 0 {
		b.WriteString("<p><small>Fuentes: ")
		b.WriteString(html.EscapeString(strings.Join(d.Sources, ", ")))
		b.WriteString("</small></p>")
	}
	b.WriteString("</div>")
	return b.String()
}

// Markdown renders the draft for terminal preview.
func (d WorkItemDraft) Markdown() string {
	var b strings.Builder
	b.WriteString("## " + d.Title + "\n\n")
	if d.Description != "" {
		b.WriteString(d.Description + "\n\n")
	}
	if len(d.AcceptanceCriteria) > 0 {
		b.WriteString("### Criterios de aceptación\n\n")
		for _, c := range d.AcceptanceCriteria {
			b.WriteString("- " + c + "\n")
		}
		b.WriteString("\n")
	}
	if len(d.Tags) > 0 {
		b.WriteString("**Etiquetas:** " + strings.Join(d.Tags, ", ") + "\n")
	}
	return strings.TrimSpace(b.String())
}
