package observability

import (
	"github.com/danmuck/napmirror/internal/logging"
	logs "github.com/danmuck/smplog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the runtime logger and tags it with the app name.
// verbose lowers the threshold to debug.
func InitLogger(app string, verbose bool) zerolog.Logger {
	logging.ConfigureRuntime()
	if verbose {
		logging.SetLevel(logs.DebugLevel)
	}
	logger := logs.With().Str("app", app).Logger()
	logs.SetLogger(logger)
	log.Logger = logger
	return logger
}
