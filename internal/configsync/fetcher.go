// Package configsync keeps the configuration store fresh: a fetcher
// pulling from the configuration server with unbounded retry, a
// websocket listener for server-pushed invalidations, and the
// synchronizer consuming its events.
package configsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/logging"
	"github.com/canmogol/archura-router/internal/metrics"
)

// Fetcher pulls configuration over HTTP from the configuration server
// named in the current snapshot.
type Fetcher struct {
	store   *config.Store
	client  *http.Client
	metrics *metrics.Metrics
}

// NewFetcher creates a fetcher against the store's configuration
// server. metrics may be nil.
func NewFetcher(store *config.Store, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		store:   store,
		client:  &http.Client{},
		metrics: m,
	}
}

// FetchGlobal performs one GET {configurationServerURL}/global attempt
// and swaps the result into the store.
func (f *Fetcher) FetchGlobal(ctx context.Context) error {
	snapshot := f.store.Snapshot()
	body, err := f.get(ctx, snapshot, snapshot.ConfigurationServerURL+"/global")
	if err != nil {
		f.countRefresh("failure")
		return err
	}
	cfg, err := config.ParseGlobal(body)
	if err != nil {
		f.countRefresh("failure")
		return err
	}
	if !f.store.ReplaceAll(cfg) {
		f.countRefresh("rejected")
		return fmt.Errorf("fetched global configuration rejected: missing server URLs")
	}
	f.countRefresh("success")
	logging.Info("global configuration fetched from configuration server")
	return nil
}

// FetchGlobalWithRetry retries FetchGlobal at the configured constant
// interval until it succeeds or the context is canceled. The router
// must not serve without configuration, and must not crash either.
func (f *Fetcher) FetchGlobalWithRetry(ctx context.Context) error {
	interval := time.Duration(f.store.Snapshot().ConfigurationServerRetryInterval) * time.Millisecond
	if interval <= 0 {
		interval = 10 * time.Second
	}
	policy := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	return backoff.Retry(func() error {
		err := f.FetchGlobal(ctx)
		if err != nil {
			logging.Error("global configuration fetch failed, will retry", zap.Error(err))
		}
		return err
	}, policy)
}

// FetchDomain performs one GET {configurationServerURL}/domain/{host}
// attempt. A failure leaves the host unresolved for the caller's
// request; there is no retry here.
func (f *Fetcher) FetchDomain(ctx context.Context, host string) (*config.DomainConfig, error) {
	snapshot := f.store.Snapshot()
	body, err := f.get(ctx, snapshot, snapshot.ConfigurationServerURL+"/domain/"+host)
	if err != nil {
		f.countDomainFetch("failure")
		return nil, err
	}
	domain, err := config.ParseDomain(body)
	if err != nil {
		f.countDomainFetch("failure")
		return nil, err
	}
	f.countDomainFetch("success")
	return domain, nil
}

func (f *Fetcher) countRefresh(result string) {
	if f.metrics != nil {
		f.metrics.ConfigRefreshes.WithLabelValues(result).Inc()
	}
}

func (f *Fetcher) countDomainFetch(result string) {
	if f.metrics != nil {
		f.metrics.DomainFetches.WithLabelValues(result).Inc()
	}
}

func (f *Fetcher) get(ctx context.Context, snapshot *config.GlobalConfig, url string) ([]byte, error) {
	timeout := time.Duration(snapshot.ConfigurationServerConnectionTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for name, value := range snapshot.ConfigurationServerRequestHeaders {
		req.Header.Set(name, value)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("configuration server returned status code %d for %s", res.StatusCode, url)
	}
	return io.ReadAll(res.Body)
}
