// Package page extracts the question text, submit endpoint and attachments
// from a rendered quiz page.
package page

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aescanero/quizsolver/pkg/domain"
)

var (
	reURL        = regexp.MustCompile(`https?://[^\s"'<>]+`)
	reSpace      = regexp.MustCompile(`[ \t\f\r]+`)
	reBlankLines = regexp.MustCompile(`\n\s*\n+`)
	// quoted site-relative path, as found in script string literals
	reQuotedPath = regexp.MustCompile("[\"'`](/[^\"'`\\s<>]+)[\"'`]")
)

var extKinds = map[string]domain.AttachmentKind{
	".pdf":  domain.AttachmentPDF,
	".csv":  domain.AttachmentCSV,
	".tsv":  domain.AttachmentCSV,
	".json": domain.AttachmentJSON,
	".txt":  domain.AttachmentText,
	".md":   domain.AttachmentText,
	".png":  domain.AttachmentImage,
	".jpg":  domain.AttachmentImage,
	".jpeg": domain.AttachmentImage,
	".gif":  domain.AttachmentImage,
	".webp": domain.AttachmentImage,
	".svg":  domain.AttachmentImage,
	".mp3":  domain.AttachmentOther,
	".wav":  domain.AttachmentOther,
	".opus": domain.AttachmentOther,
	".xlsx": domain.AttachmentOther,
	".zip":  domain.AttachmentOther,
}

// KindOf classifies a URL by its path extension. ok is false for URLs
// without a known extension.
func KindOf(rawURL string) (domain.AttachmentKind, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	kind, ok := extKinds[strings.ToLower(path.Ext(u.Path))]
	return kind, ok
}

// Parse builds a QuizPage from rendered HTML fetched from pageURL
func Parse(pageURL, html string) (*domain.QuizPage, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	p := &domain.QuizPage{
		URL:  pageURL,
		HTML: html,
	}

	doc.Find("script, style, noscript, template").Remove()
	p.Text = visibleText(doc)

	p.SubmitURL = findSubmitURL(doc, base, p.Text)
	if p.SubmitURL == "" {
		// endpoint only present in removed markup such as inline scripts
		p.SubmitURL = findSubmitInSource(base, html)
	}
	p.Attachments = findAttachments(doc, base, p.Text)

	return p, nil
}

// visibleText returns body text with runs of blank space collapsed
func visibleText(doc *goquery.Document) string {
	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}

	var b strings.Builder
	sel.Find("br, p, div, li, tr, h1, h2, h3, h4, h5, h6, pre").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	b.WriteString(sel.Text())

	text := reSpace.ReplaceAllString(b.String(), " ")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = reBlankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

func findSubmitURL(doc *goquery.Document, base *url.URL, text string) string {
	var found string

	doc.Find("form[action]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		action, _ := s.Attr("action")
		if strings.Contains(action, "/submit") {
			found = resolve(base, action)
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if strings.Contains(href, "/submit") {
			found = resolve(base, href)
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	for _, m := range reURL.FindAllString(text, -1) {
		m = trimURLPunctuation(m)
		if strings.Contains(m, "/submit") {
			return m
		}
	}

	// Relative "/submit" mentioned in prose, e.g. "POST your answer to /submit"
	for _, field := range strings.Fields(text) {
		field = trimURLPunctuation(field)
		if strings.HasPrefix(field, "/submit") {
			return resolve(base, field)
		}
	}

	return ""
}

// findSubmitInSource scans raw HTML for an absolute submit URL or a quoted
// relative one
func findSubmitInSource(base *url.URL, html string) string {
	for _, m := range reURL.FindAllString(html, -1) {
		m = trimURLPunctuation(m)
		if strings.Contains(m, "/submit") {
			return m
		}
	}
	for _, m := range reQuotedPath.FindAllStringSubmatch(html, -1) {
		if strings.Contains(m[1], "/submit") {
			return resolve(base, m[1])
		}
	}
	return ""
}

func findAttachments(doc *goquery.Document, base *url.URL, text string) []domain.Attachment {
	var out []domain.Attachment
	seen := make(map[string]bool)

	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "javascript:") || strings.HasPrefix(raw, "data:") {
			return
		}
		abs := resolve(base, raw)
		kind, ok := KindOf(abs)
		if !ok || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, domain.Attachment{URL: abs, Kind: kind})
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href)
	})
	doc.Find("img[src], audio[src], source[src], embed[src], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src)
	})
	for _, m := range reURL.FindAllString(text, -1) {
		add(trimURLPunctuation(m))
	}

	return out
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func trimURLPunctuation(s string) string {
	return strings.TrimRight(s, ".,;:!?)]}\"'`")
}
