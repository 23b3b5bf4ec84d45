package devops

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// WikiPage is a wiki page; Content is markdown and only set when fetched individually.
type WikiPage struct {
	ID      int    `json:"id"`
	Path    string `json:"path"`
	Content string `json:"content"`
	URL     string `json:"remoteUrl"`
	ETag    string `json:"-"`

	SubPages []WikiPage `json:"subPages"`
}

func (c *Client) wikiPagesPath() string {
	return "/_apis/wiki/wikis/" + url.PathEscape(c.cfg.WikiID) + "/pages"
}

// ListWikiPages returns every page of the wiki flattened in tree order, without content.
func (c *Client) ListWikiPages(ctx context.Context) ([]WikiPage, error) {
	q := url.Values{}
	q.Set("path", "/")
	q.Set("recursionLevel", "full")
	var root WikiPage
	if _, err := c.do(ctx, request{method: http.MethodGet, path: c.wikiPagesPath(), query: q}, &root); err != nil {
		return nil, err
	}
	var out []WikiPage
	var walk func(p WikiPage)
	walk = func(p WikiPage) {
		if p.Path != "" && p.Path != "/" {
			sub := p.SubPages
			p.SubPages = nil
			out = append(out, p)
			for _, s := range sub {
				walk(s)
			}
			return
		}
		for _, s := range p.SubPages {
			walk(s)
		}
	}
	walk(root)
	return out, nil
}

// GetWikiPage fetches one page with its content and ETag.
func (c *Client) GetWikiPage(ctx context.Context, path string) (WikiPage, error) {
	path = normalizeWikiPath(path)
	q := url.Values{}
	q.Set("path", path)
	q.Set("includeContent", "true")
	var page WikiPage
	header, err := c.do(ctx, request{method: http.MethodGet, path: c.wikiPagesPath(), query: q}, &page)
	if err != nil {
		return WikiPage{}, err
	}
	page.ETag = header.Get("ETag")
	page.SubPages = nil
	return page, nil
}

// WikiPages fetches the content of every page, skipping pages that fail.
func (c *Client) WikiPages(ctx context.Context, limit int) ([]WikiPage, error) {
	pages, err := c.ListWikiPages(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}
	out := make([]WikiPage, 0, len(pages))
	for _, p := range pages {
		full, err := c.GetWikiPage(ctx, p.Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("wiki page skipped", "path", p.Path, "error", err.Error())
			continue
		}
		out = append(out, full)
	}
	return out, nil
}

// UpsertWikiPage creates the page at path or replaces its content, sending the current ETag
// as If-Match when the page exists.
func (c *Client) UpsertWikiPage(ctx context.Context, path, content string) (WikiPage, error) {
	path = normalizeWikiPath(path)
	if path == "/" {
		return WikiPage{}, fmt.Errorf("wiki page path is empty")
	}
	header := http.Header{}
	existing, err := c.GetWikiPage(ctx, path)
	switch {
	case err == nil:
		if existing.ETag != "" {
			header.Set("If-Match", existing.ETag)
		}
	case IsNotFound(err):
	default:
		return WikiPage{}, err
	}

	q := url.Values{}
	q.Set("path", path)
	var page WikiPage
	respHeader, err := c.do(ctx, request{
		method: http.MethodPut,
		path:   c.wikiPagesPath(),
		query:  q,
		body:   map[string]string{"content": content},
		header: header,
	}, &page)
	if err != nil {
		return WikiPage{}, err
	}
	page.ETag = respHeader.Get("ETag")
	page.SubPages = nil
	c.log.Info("wiki page saved", "path", path, "updated", existing.Path != "")
	return page, nil
}

// JoinWikiPath joins a parent path and a page title into a wiki path.
func JoinWikiPath(parent, title string) string {
	title = strings.TrimSpace(strings.ReplaceAll(title, "/", "-"))
	parent = strings.TrimRight(normalizeWikiPath(parent), "/")
	return parent + "/" + title
}

func normalizeWikiPath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
