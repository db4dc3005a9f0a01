package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

const module = "archive"

// ErrNotFound is returned by Download when the location answers 404.
var ErrNotFound = errors.New("archive not found")

// ArchiveSource is the transport the prober and fetcher depend on.
type ArchiveSource interface {
	// Probe reports whether url answers 200 to an existence check. A transport
	// failure is returned as an error.
	Probe(ctx context.Context, url string) (bool, error)
	// Download returns the body at url. A 404 is ErrNotFound; any other failure
	// is a TransientFetchError.
	Download(ctx context.Context, url string) ([]byte, error)
}

// HTTPClient is the subset of *http.Client used by HTTPSource.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource reads archives over HTTP. Downloads run behind a circuit breaker
// that opens after consecutive transient failures.
type HTTPSource struct {
	client  HTTPClient
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPSource creates an HTTPSource. Deadlines come from the caller's context.
func NewHTTPSource(client HTTPClient, cfg config.ResilienceConfig) *HTTPSource {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{client: client, breaker: NewBreaker("trip-archive", cfg)}
}

// NewBreaker builds the circuit breaker shared by the remote sources. A 404 does not count as a failure.
func NewBreaker(name string, cfg config.ResilienceConfig) *gobreaker.CircuitBreaker {
	threshold := uint32(cfg.BreakerFailureThreshold)
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("Circuit breaker '%s' changed from %s to %s.", name, from, to)
		},
	})
}

func (s *HTTPSource) Probe(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	logger.Debugf("HEAD %s -> %d", url, resp.StatusCode)
	return resp.StatusCode == http.StatusOK, nil
}

func (s *HTTPSource) Download(ctx context.Context, url string) ([]byte, error) {
	body, err := s.breaker.Execute(func() (interface{}, error) {
		return s.get(ctx, url)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, exception.NewKindError(exception.KindTransientFetch, module, "archive source circuit is open", err)
		}
		return nil, err
	}
	return body.([]byte), nil
}

func (s *HTTPSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, exception.NewKindError(exception.KindTransientFetch, module, "failed to build request", err)
	}
	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, exception.NewKindError(exception.KindTransientFetch, module, fmt.Sprintf("GET %s failed", url), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %w", url, ErrNotFound)
	default:
		return nil, exception.NewKindError(exception.KindTransientFetch, module,
			fmt.Sprintf("GET %s returned HTTP %d", url, resp.StatusCode), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, exception.NewKindError(exception.KindTransientFetch, module, fmt.Sprintf("failed to read body of %s", url), err)
	}
	logger.Debugf("GET %s -> %d bytes in %s", url, len(body), time.Since(start).Round(time.Millisecond))
	return body, nil
}

var _ ArchiveSource = (*HTTPSource)(nil)
