// File path: internal/linkcheck/checker.go
package linkcheck

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/common/telemetry"
)

// Checker probes target URLs over a pooled transport. HEAD first, falling
// back to GET for servers that reject HEAD. A network error or a status of
// 400 and above counts as broken.
type Checker struct {
	cfg    Config
	client *http.Client
}

func NewChecker(cfg Config) *Checker {
	cfg.applyDefaults()
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
	}
	return &Checker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
}

// Check probes one URL.
func (c *Checker) Check(ctx context.Context, url string) bool {
	if c == nil || c.client == nil {
		return true
	}
	if ok, decided := c.probe(ctx, http.MethodHead, url); decided {
		return ok
	}
	ok, _ := c.probe(ctx, http.MethodGet, url)
	return ok
}

// probe returns (reachable, decided). decided is false when HEAD was refused
// with 405 and a GET retry is warranted.
func (c *Checker) probe(ctx context.Context, method, url string) (bool, bool) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false, true
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, true
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
	}()
	if method == http.MethodHead && resp.StatusCode == http.StatusMethodNotAllowed {
		return false, false
	}
	return resp.StatusCode < http.StatusBadRequest, true
}

// CheckAll probes every URL with bounded concurrency and returns the broken
// ones sorted. The context cancels outstanding probes.
func (c *Checker) CheckAll(ctx context.Context, urls []string) ([]string, error) {
	if c == nil || len(urls) == 0 {
		return nil, nil
	}
	var mu sync.Mutex
	broken := []string{}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.Concurrency)
	for _, url := range urls {
		url := url
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !c.Check(ctx, url) {
				mu.Lock()
				broken = append(broken, url)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(broken)
	telemetry.RecordLinkChecks(len(urls), len(broken))
	if len(broken) > 0 {
		common.Logger().Info("linkcheck: broken targets found", "checked", len(urls), "broken", len(broken))
	}
	return broken, nil
}
