package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/capability"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// OpWebFetch loads a page in headless Chrome and extracts its title and text.
const OpWebFetch = "web.fetch"

const (
	webFetchTimeout = 60 * time.Second
	maxPageText     = 8000
)

// WebConfig configures the page fetching backend.
type WebConfig struct {
	Headless bool
	Logger   *slog.Logger
}

// Web fetches URL content with headless Chrome. JavaScript-heavy pages
// render fully before extraction, which plain HTTP fetching cannot do.
type Web struct {
	headless bool
	logger   *slog.Logger
}

func NewWeb(cfg WebConfig) *Web {
	return &Web{headless: cfg.Headless, logger: cfg.Logger}
}

func (w *Web) Name() string { return "web" }

func (w *Web) Operations() []domain.Operation {
	return []domain.Operation{
		{
			Name:        OpWebFetch,
			Description: "Fetch a web page and extract its title and readable text",
			Parameters: capability.Parameters(map[string]capability.Param{
				"url": {Type: "string", Description: "The URL to fetch"},
			}, []string{"url"}),
		},
	}
}

func (w *Web) Invoke(ctx context.Context, op string, args map[string]any) domain.Result {
	if op != OpWebFetch {
		return domain.Fail("web backend has no operation " + op)
	}
	url := capability.ArgString(args, "url")
	if url == "" {
		return domain.Fail("web.fetch requires a url argument")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	title, text, err := w.fetch(ctx, url)
	if err != nil {
		return domain.Fail(err.Error())
	}
	return domain.Ok(map[string]any{"url": url, "title": title, "text": text})
}

func (w *Web) fetch(parent context.Context, url string) (title, text string, err error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if !w.headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, webFetchTimeout)
	defer timeoutCancel()

	err = chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.Title(&title),
		chromedp.Text("body", &text, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", url, err)
	}

	text = trimPageText(text)

	w.logger.Info("page fetched", "url", url, "title", title, "text_len", len(text))
	return title, text, nil
}

// trimPageText caps extracted body text at maxPageText runes so a cut
// never lands mid character.
func trimPageText(text string) string {
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > maxPageText {
		return string(runes[:maxPageText])
	}
	return text
}
