package archive

import (
	"go.uber.org/fx"

	"github.com/tigerroll/citibike/internal/staging"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
)

func newSource(cfg *config.Config) ArchiveSource {
	return NewHTTPSource(nil, cfg.Citibike.Resilience)
}

func newLocator(cfg *config.Config) Locator {
	return NewLocator(cfg.Citibike.Pipeline.ArchiveBaseURL)
}

func newProber(cfg *config.Config, source ArchiveSource, locator Locator) *Prober {
	return NewProber(source, locator, cfg.Citibike.Pipeline.ProbeTimeout)
}

func newFetcher(cfg *config.Config, source ArchiveSource, locator Locator, stager *staging.Stager, recorder metrics.MetricRecorder) *Fetcher {
	return NewFetcher(source, locator, stager, cfg.Citibike.Pipeline.DownloadTimeout, recorder)
}

// Module provides the trip archive source, prober and fetcher.
var Module = fx.Options(
	fx.Provide(newSource, newLocator, newProber, newFetcher),
)
