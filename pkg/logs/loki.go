package logs

import (
	"log/slog"
	"strings"

	"github.com/grafana/loki-client-go/loki"
	promconfig "github.com/prometheus/common/config"
	slogloki "github.com/samber/slog-loki/v3"

	"github.com/Alijeyrad/simorq_billing/config"
)

// newLokiHandler pushes log records to Loki. The client batches in the
// background, so the returned stop func flushes what is left.
func newLokiHandler(cfg *config.Config, level slog.Level) (slog.Handler, func(), error) {
	endpoint := strings.TrimRight(cfg.Logging.Output.Loki.Endpoint, "/") + "/loki/api/v1/push"

	lc, err := loki.NewDefaultConfig(endpoint)
	if err != nil {
		return nil, nil, err
	}
	if u := cfg.Logging.Output.Loki.Username; u != "" {
		lc.Client.BasicAuth = &promconfig.BasicAuth{
			Username: u,
			Password: promconfig.Secret(cfg.Logging.Output.Loki.Password),
		}
	}

	client, err := loki.New(lc)
	if err != nil {
		return nil, nil, err
	}

	h := slogloki.Option{Level: level, Client: client}.NewLokiHandler()
	return h, client.Stop, nil
}
