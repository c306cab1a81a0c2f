package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/adapters/filter"
	"github.com/mikey/antispam/internal/config"
	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/stats"
)

// NewEmailFilter builds the configured message entry point.
func NewEmailFilter(cfg *config.Config, pipeline *core.Pipeline, statsManager *stats.Manager, logger *zap.Logger) (core.EmailFilter, error) {
	switch filterType := cfg.GetString("server.filter_type"); filterType {
	case "postfix":
		return filter.NewPostfixFilter(pipeline, statsManager, filter.PostfixConfig{
			ListenAddr:    cfg.GetString("server.listen_address"),
			BlockSpam:     cfg.GetBool("server.block_spam"),
			SpamHeader:    cfg.GetString("server.headers.spam"),
			ScoreHeader:   cfg.GetString("server.headers.score"),
			ReasonHeader:  cfg.GetString("server.headers.reason"),
			MethodHeader:  cfg.GetString("server.headers.method"),
			PostfixAddr:   cfg.GetString("server.postfix.address"),
			PostfixPort:   cfg.GetInt("server.postfix.port"),
			SubjectPrefix: cfg.GetString("server.subject.prefix"),
			ModifySubject: cfg.GetBool("server.subject.modify"),
		}, logger), nil
	case "cli":
		return filter.NewCliFilter(pipeline, statsManager, logger, cfg.GetBool("logging.verbose")), nil
	default:
		return nil, fmt.Errorf("unknown filter type: %s", filterType)
	}
}
