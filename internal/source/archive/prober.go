package archive

import (
	"context"
	"time"

	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// DefaultProbeTimeout bounds each existence check.
const DefaultProbeTimeout = 30 * time.Second

// Prober checks whether a period's archive has been published.
type Prober struct {
	source  ArchiveSource
	locator Locator
	timeout time.Duration
}

func NewProber(source ArchiveSource, locator Locator, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{source: source, locator: locator, timeout: timeout}
}

// Probe tries every candidate in order and returns true on the first 200.
// Network errors and timeouts move on to the next candidate. The error is
// non-nil only when ctx itself is done.
func (p *Prober) Probe(ctx context.Context, pd period.Period) (bool, error) {
	for _, url := range p.locator.LocationsFor(pd) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ok, err := p.probeOne(ctx, url)
		if err != nil {
			logger.Warnf("Availability check of %s failed: %v", url, err)
			continue
		}
		if ok {
			logger.Infof("Data available at %s", url)
			return true, nil
		}
	}
	return false, ctx.Err()
}

func (p *Prober) probeOne(ctx context.Context, url string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.source.Probe(ctx, url)
}
