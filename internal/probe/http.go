package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// rungResult is the outcome of a single ladder rung.
type rungResult struct {
	up        bool
	statusMsg string
}

// probeHTTP runs the three-rung HTTP ladder (HEAD, capped GET, GET with
// rotating User-Agent) against address, stopping at the first rung that
// classifies as up. address must already carry a scheme.
func (e *Engine) probeHTTP(ctx context.Context, address string) (up bool, errMsg string) {
	client := e.httpClient
	if strings.HasPrefix(address, "https://") {
		client = e.httpsClient
	}

	rungs := []func(context.Context, *http.Client, string) rungResult{
		e.probeHead,
		e.probeCappedGet,
		e.probeRotatingUAGet,
	}

	var last rungResult
	for _, rung := range rungs {
		last = rung(ctx, client, address)
		if last.up {
			return true, ""
		}
		if ctx.Err() != nil {
			return false, ctx.Err().Error()
		}
	}
	return false, last.statusMsg
}

func (e *Engine) probeHead(ctx context.Context, client *http.Client, address string) rungResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, address, nil)
	if err != nil {
		return rungResult{up: false, statusMsg: err.Error()}
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return rungResult{up: false, statusMsg: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 0))

	if classifyStatusCode(resp.StatusCode) {
		return rungResult{up: true}
	}
	return rungResult{up: false, statusMsg: fmt.Sprintf("HTTP %d", resp.StatusCode)}
}

func (e *Engine) probeCappedGet(ctx context.Context, client *http.Client, address string) rungResult {
	gctx, cancel := context.WithTimeout(ctx, time.Duration(float64(perAttemptTimeout)*getTimeoutRatio))
	defer cancel()

	req, err := http.NewRequestWithContext(gctx, http.MethodGet, address, nil)
	if err != nil {
		return rungResult{up: false, statusMsg: err.Error()}
	}
	req.Header.Set("Accept", "*/*")

	resp, err := client.Do(req)
	if err != nil {
		return rungResult{up: false, statusMsg: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, getBodyLimit))

	if classifyStatusCode(resp.StatusCode) {
		return rungResult{up: true}
	}
	return rungResult{up: false, statusMsg: fmt.Sprintf("HTTP %d", resp.StatusCode)}
}

func (e *Engine) probeRotatingUAGet(ctx context.Context, client *http.Client, address string) rungResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return rungResult{up: false, statusMsg: err.Error()}
	}
	req.Header.Set("User-Agent", e.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := client.Do(req)
	if err != nil {
		return rungResult{up: false, statusMsg: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, getBodyLimit))

	if classifyStatusCode(resp.StatusCode) {
		return rungResult{up: true}
	}
	return rungResult{up: false, statusMsg: fmt.Sprintf("HTTP %d", resp.StatusCode)}
}
