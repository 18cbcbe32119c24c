package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/jobwatch/crawler/internal/crawler"
	"github.com/jobwatch/crawler/internal/fingerprint"
)

// Selector config keys read from CrawlTarget.ParserConfig. The selectors
// themselves are seeded per site; only the mechanism lives here.
const (
	cfgListSelector    = "list_selector"
	cfgTitleSelector   = "title_selector"
	cfgLinkSelector    = "link_selector"
	cfgCompanySelector = "company_selector"
	cfgDetailSelector  = "detail_selector"
	cfgBaseURL         = "base_url"
)

// HTML crawls selector-configured job boards: it hashes the canonicalized
// list page before paying any parsing cost, then follows each item's detail
// link to extract the posting body.
type HTML struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// NewHTML builds the HTML adapter.
func NewHTML(fetcher crawler.Fetcher, logger *zap.Logger) *HTML {
	return &HTML{fetcher: fetcher, logger: logger}
}

type itemStub struct {
	title   string
	url     string
	company string
}

// Poll implements Adapter.
func (a *HTML) Poll(ctx context.Context, target crawler.CrawlTarget) (Result, error) {
	listHTML, err := a.fetcher.Fetch(ctx, target.ListURL)
	if err != nil {
		return Result{}, fmt.Errorf("fetch list page: %w", err)
	}

	fp, err := fingerprint.CanonicalHTML(listHTML)
	if err != nil {
		return Result{}, &crawler.PayloadError{Source: "html", Reason: "canonicalize list page", Err: err}
	}
	if fp == target.LastFingerprint {
		return Result{Fingerprint: fp}, nil
	}

	stubs, err := a.parseList(listHTML, target.ParserConfig)
	if err != nil {
		return Result{}, err
	}
	if len(stubs) == 0 {
		a.logger.Warn("no job items found on list page", zap.String("target", target.Name))
		return Result{Fingerprint: fp}, nil
	}

	result := Result{Fingerprint: fp}
	for _, stub := range stubs {
		posting, ok := a.fetchItem(ctx, target, stub, &result)
		if ok {
			result.Postings = append(result.Postings, posting)
		}
	}
	return result, nil
}

// fetchItem follows one stub's detail link. Failures are non-fatal: they are
// logged and counted, and the remaining items still get processed.
func (a *HTML) fetchItem(
	ctx context.Context,
	target crawler.CrawlTarget,
	stub itemStub,
	result *Result,
) (crawler.NormalizedPosting, bool) {
	detailHTML, err := a.fetcher.Fetch(ctx, stub.url)
	if err != nil {
		a.logger.Error("detail fetch failed",
			zap.String("target", target.Name),
			zap.String("url", stub.url),
			zap.Error(err),
		)
		result.ItemErrors++
		return crawler.NormalizedPosting{}, false
	}

	content, err := a.parseDetail(detailHTML, target.ParserConfig)
	if err != nil {
		a.logger.Error("detail parse failed",
			zap.String("target", target.Name),
			zap.String("url", stub.url),
			zap.Error(err),
		)
		result.ItemErrors++
		return crawler.NormalizedPosting{}, false
	}
	if content == "" {
		a.logger.Warn("empty content for item",
			zap.String("target", target.Name),
			zap.String("title", stub.title),
		)
		return crawler.NormalizedPosting{}, false
	}

	return crawler.NormalizedPosting{
		Title:       stub.title,
		CompanyName: stub.company,
		URL:         stub.url,
		Content:     content,
	}, true
}

func (a *HTML) parseList(markup string, cfg map[string]string) ([]itemStub, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, &crawler.PayloadError{Source: "html", Reason: "parse list page", Err: err}
	}

	listSelector := configOr(cfg, cfgListSelector, ".job-item")
	titleSelector := configOr(cfg, cfgTitleSelector, ".title")
	linkSelector := configOr(cfg, cfgLinkSelector, "a")
	companySelector := cfg[cfgCompanySelector]
	base := parseBaseURL(cfg[cfgBaseURL])

	var stubs []itemStub
	doc.Find(listSelector).Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(titleSelector).First().Text())
		if title == "" {
			return
		}

		link := item.Find(linkSelector).First()
		if link.Length() == 0 && goquery.NodeName(item) == "a" {
			link = item
		}
		href, _ := link.Attr("href")
		if href == "" {
			return
		}

		company := ""
		if companySelector != "" {
			company = strings.TrimSpace(item.Find(companySelector).First().Text())
		}

		stubs = append(stubs, itemStub{
			title:   title,
			url:     resolveURL(base, href),
			company: company,
		})
	})
	return stubs, nil
}

// detailFallbacks are tried in order when the configured detail selector
// matches nothing on the page.
var detailFallbacks = []string{
	"article",
	".job-description",
	".job-content",
	".content",
	"#content",
	"main",
}

func (a *HTML) parseDetail(markup string, cfg map[string]string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", &crawler.PayloadError{Source: "html", Reason: "parse detail page", Err: err}
	}

	selectors := append([]string{configOr(cfg, cfgDetailSelector, "main")}, detailFallbacks...)
	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 {
			sel.Find("script, style").Remove()
			return extractText(sel), nil
		}
	}

	body := doc.Find("body").First()
	if body.Length() > 0 {
		body.Find("script, style, nav, header, footer").Remove()
		return extractText(body), nil
	}
	return "", nil
}

// extractText joins the trimmed text nodes under a selection with newlines,
// skipping script/style subtrees.
func extractText(sel *goquery.Selection) string {
	var parts []string
	for _, node := range sel.Nodes {
		collectText(node, &parts)
	}
	return strings.Join(parts, "\n")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			*parts = append(*parts, text)
		}
		return
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

func configOr(cfg map[string]string, key, fallback string) string {
	if v := cfg[key]; v != "" {
		return v
	}
	return fallback
}

func parseBaseURL(raw string) *url.URL {
	if raw == "" {
		return nil
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return base
}

func resolveURL(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
