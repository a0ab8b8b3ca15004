package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// scrapeLogger adapts slog to promhttp.Logger.
type scrapeLogger struct {
	logger *slog.Logger
}

func (l scrapeLogger) Println(v ...interface{}) {
	l.logger.Warn("metrics scrape error", "error", v)
}

// Handler serves the collector's registry in the Prometheus exposition
// format. Collection errors are logged and the remaining metrics are still
// served. A nil collector serves 404.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
		ErrorLog:          scrapeLogger{logger: slog.Default().With("component", "metrics")},
		Registry:          c.registry,
	})
}
