package browser

import (
	"fmt"

	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/config"

	"github.com/sirupsen/logrus"
)

// Open - launches the backend selected by cfg. Page console output goes to
// consoleLogger when it is not nil.
func Open(cfg *config.Config, logger, consoleLogger *logrus.Logger) (interfaces.Browser, error) {
	opts := Options{
		Headless:      cfg.Headless,
		ConsoleLogger: consoleLogger,
	}

	switch cfg.Backend {
	case config.BackendPlaywright:
		if cfg.Stealth || cfg.RemoteURL != "" {
			logger.Warn("EVAL_STEALTH and EVAL_CDP_URL only apply to the rod backend")
		}
		return NewBrowserController(opts, logger)
	case config.BackendRod:
		return NewRodController(RodOptions{
			Options:   opts,
			RemoteURL: cfg.RemoteURL,
			Stealth:   cfg.Stealth,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown browser backend %q", cfg.Backend)
	}
}
