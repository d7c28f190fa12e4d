package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPAction sends a request and stores the response body and status code.
//
//	url           request URL (template)
//	method        defaults to GET
//	body          request body (template)
//	headers       "Key: Value; Key: Value" (template)
//	response_key  defaults to <name>_body
//	status_key    defaults to <name>_status
//	fail_non2xx   "true" fails the step on a non-2xx status
//
// Each request is bounded by Timeout (30s when zero) as well as by the
// step's own "timeout". Transport errors and 5xx statuses are retryable;
// 4xx statuses are permanent.
type HTTPAction struct {
	Client  *http.Client
	Timeout time.Duration
}

func (a *HTTPAction) Run(ctx context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error) {
	data := templateData(pctx)

	urlStr, err := renderTemplate(step.Attrs["url"], data)
	if err != nil {
		return nil, chain.Permanent(fmt.Errorf("http step %q: url template: %w", step.Name, err))
	}
	if urlStr == "" {
		return nil, chain.Permanent(fmt.Errorf("http step %q: missing required 'url' attribute", step.Name))
	}
	method := strings.ToUpper(step.Attrs["method"])
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if tpl := step.Attrs["body"]; tpl != "" {
		s, err := renderTemplate(tpl, data)
		if err != nil {
			return nil, chain.Permanent(fmt.Errorf("http step %q: body template: %w", step.Name, err))
		}
		body = strings.NewReader(s)
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, urlStr, body)
	if err != nil {
		return nil, chain.Permanent(fmt.Errorf("http step %q: build request: %w", step.Name, err))
	}
	if tpl := step.Attrs["headers"]; tpl != "" {
		s, err := renderTemplate(tpl, data)
		if err != nil {
			return nil, chain.Permanent(fmt.Errorf("http step %q: headers template: %w", step.Name, err))
		}
		for _, pair := range strings.Split(s, ";") {
			if pair = strings.TrimSpace(pair); pair == "" {
				continue
			}
			k, v, ok := strings.Cut(pair, ":")
			if !ok {
				return nil, chain.Permanent(fmt.Errorf("http step %q: header %q missing ':' separator", step.Name, pair))
			}
			req.Header.Set(strings.TrimSpace(k), strings.TrimSpace(v))
		}
	}

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return chain.Failed("HTTP_TRANSPORT", err.Error()), fmt.Errorf("http step %q: request failed: %w", step.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http step %q: read response body: %w", step.Name, err)
	}

	responseKey := step.Attrs["response_key"]
	if responseKey == "" {
		responseKey = step.Name + "_body"
	}
	statusKey := step.Attrs["status_key"]
	if statusKey == "" {
		statusKey = step.Name + "_status"
	}
	pctx.Set(responseKey, string(b))
	pctx.Set(statusKey, resp.StatusCode)

	if step.Attrs["fail_non2xx"] == "true" && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		err := fmt.Errorf("http step %q: non-2xx status %d", step.Name, resp.StatusCode)
		if resp.StatusCode < 500 {
			err = chain.Permanent(err)
		}
		return chain.Failed("HTTP_STATUS", resp.Status), err
	}
	return chain.Succeeded(map[string]any{"status": resp.StatusCode}), nil
}
