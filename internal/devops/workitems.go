package devops

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	batchSize     = 200
	maxTitleRunes = 255
)

var defaultFields = []string{
	"System.Id",
	"System.WorkItemType",
	"System.Title",
	"System.State",
	"System.AssignedTo",
	"System.AreaPath",
	"System.Tags",
	"System.Description",
	"Microsoft.VSTS.Common.AcceptanceCriteria",
	"System.CreatedDate",
	"System.ChangedDate",
}

// WorkItem is a flattened work item. Description and AcceptanceCriteria are plain text.
type WorkItem struct {
	ID                 int
	Type               string
	Title              string
	State              string
	AssignedTo         string
	AreaPath           string
	Tags               []string
	Description        string
	AcceptanceCriteria string
	CreatedDate        string
	ChangedDate        string
	URL                string
	Fields             map[string]string
}

// NewWorkItem describes a work item to create. Description is HTML.
type NewWorkItem struct {
	Type               string
	Title              string
	Description        string
	AcceptanceCriteria string
	Tags               []string
	AreaPath           string
	// Extra sets arbitrary fields by reference name.
	Extra map[string]string
}

type wiqlResponse struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

type rawWorkItem struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
	URL    string         `json:"url"`
}

type batchResponse struct {
	Count int           `json:"count"`
	Value []rawWorkItem `json:"value"`
}

// QueryWorkItems runs a WIQL query and returns the matching IDs in query order.
func (c *Client) QueryWorkItems(ctx context.Context, wiql string, top int) ([]int, error) {
	if strings.TrimSpace(wiql) == "" {
		return nil, fmt.Errorf("wiql query is empty")
	}
	q := url.Values{}
	if top > 0 {
		q.Set("$top", strconv.Itoa(top))
	}
	var resp wiqlResponse
	if _, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/_apis/wit/wiql",
		query:    q,
		body:     map[string]string{"query": wiql},
		readOnly: true,
	}, &resp); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(resp.WorkItems))
	for _, w := range resp.WorkItems {
		ids = append(ids, w.ID)
	}
	return ids, nil
}

// GetWorkItems fetches work items in batches of 200, preserving the order of ids.
func (c *Client) GetWorkItems(ctx context.Context, ids []int) ([]WorkItem, error) {
	byID := make(map[int]WorkItem, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		var resp batchResponse
		if _, err := c.do(ctx, request{
			method: http.MethodPost,
			path:   "/_apis/wit/workitemsbatch",
			body: map[string]any{
				"ids":         ids[start:end],
				"fields":      defaultFields,
				"errorPolicy": "omit",
			},
			readOnly: true,
		}, &resp); err != nil {
			return nil, err
		}
		for _, raw := range resp.Value {
			if raw.ID == 0 {
				continue
			}
			byID[raw.ID] = flattenWorkItem(raw)
		}
	}
	out := make([]WorkItem, 0, len(byID))
	for _, id := range ids {
		if w, ok := byID[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

// RecentWorkItems returns up to n work items of the project, most recently changed first.
// types optionally restricts the work item types.
func (c *Client) RecentWorkItems(ctx context.Context, n int, types ...string) ([]WorkItem, error) {
	if n <= 0 {
		n = 100
	}
	wiql := "SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = " + wiqlString(c.cfg.Project)
	if len(types) > 0 {
		quoted := make([]string, 0, len(types))
		for _, t := range types {
			quoted = append(quoted, wiqlString(t))
		}
		wiql += " AND [System.WorkItemType] IN (" + strings.Join(quoted, ", ") + ")"
	}
	wiql += " ORDER BY [System.ChangedDate] DESC"
	ids, err := c.QueryWorkItems(ctx, wiql, n)
	if err != nil {
		return nil, err
	}
	if len(ids) > n {
		ids = ids[:n]
	}
	return c.GetWorkItems(ctx, ids)
}

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// CreateWorkItem creates a work item with a JSON patch document. The title is capped at 255 runes.
func (c *Client) CreateWorkItem(ctx context.Context, item NewWorkItem) (WorkItem, error) {
	typ := strings.TrimSpace(item.Type)
	if typ == "" {
		return WorkItem{}, fmt.Errorf("work item type is empty")
	}
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return WorkItem{}, fmt.Errorf("work item title is empty")
	}
	ops := []patchOp{{Op: "add", Path: "/fields/System.Title", Value: truncateRunes(title, maxTitleRunes)}}
	if d := strings.TrimSpace(item.Description); d != "" {
		ops = append(ops, patchOp{Op: "add", Path: "/fields/System.Description", Value: d})
	}
	if ac := strings.TrimSpace(item.AcceptanceCriteria); ac != "" {
		ops = append(ops, patchOp{Op: "add", Path: "/fields/Microsoft.VSTS.Common.AcceptanceCriteria", Value: ac})
	}
	if tags := joinTags(item.Tags); tags != "" {
		ops = append(ops, patchOp{Op: "add", Path: "/fields/System.Tags", Value: tags})
	}
	if area := strings.TrimSpace(item.AreaPath); area != "" {
		ops = append(ops, patchOp{Op: "add", Path: "/fields/System.AreaPath", Value: area})
	}
	extra := make([]string, 0, len(item.Extra))
	for k := range item.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		ops = append(ops, patchOp{Op: "add", Path: "/fields/" + k, Value: item.Extra[k]})
	}

	var raw rawWorkItem
	if _, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/_apis/wit/workitems/$" + url.PathEscape(typ),
		body:        ops,
		contentType: "application/json-patch+json",
	}, &raw); err != nil {
		return WorkItem{}, err
	}
	w := flattenWorkItem(raw)
	c.log.Info("work item created", "id", w.ID, "type", typ)
	return w, nil
}

// WebURL is the browser link for a work item.
func (c *Client) WebURL(id int) string {
	return c.baseURL + "/_workitems/edit/" + strconv.Itoa(id)
}

func flattenWorkItem(raw rawWorkItem) WorkItem {
	fields := make(map[string]string, len(raw.Fields))
	for k, v := range raw.Fields {
		fields[k] = fieldString(v)
	}
	w := WorkItem{
		ID:                 raw.ID,
		Type:               fields["System.WorkItemType"],
		Title:              fields["System.Title"],
		State:              fields["System.State"],
		AssignedTo:         fields["System.AssignedTo"],
		AreaPath:           fields["System.AreaPath"],
		Description:        HTMLToText(fields["System.Description"]),
		AcceptanceCriteria: HTMLToText(fields["Microsoft.VSTS.Common.AcceptanceCriteria"]),
		CreatedDate:        fields["System.CreatedDate"],
		ChangedDate:        fields["System.ChangedDate"],
		URL:                raw.URL,
		Fields:             fields,
	}
	if w.Description == "" {
		w.Description = HTMLToText(fields["Microsoft.VSTS.TCM.ReproSteps"])
	}
	for _, t := range strings.Split(fields["System.Tags"], ";") {
		if t = strings.TrimSpace(t); t != "" {
			w.Tags = append(w.Tags, t)
		}
	}
	return w
}

// fieldString renders a field value; identity objects become their display name.
func fieldString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		for _, k := range []string{"displayName", "uniqueName", "name"} {
			if s, ok := x[k].(string); ok && s != "" {
				return s
			}
		}
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func joinTags(tags []string) string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return strings.Join(out, "; ")
}

func wiqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
