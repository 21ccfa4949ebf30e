package testhelpers

import (
	"testing"

	"github.com/chinmina/chinmina-components/internal/audit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger routes the global and context loggers to the test output. The
// previous configuration is restored when the test completes.
func SetupLogger(t *testing.T) {
	t.Helper()

	previousLogger := log.Logger
	previousContextLogger := zerolog.DefaultContextLogger
	previousLevelMarshal := zerolog.LevelFieldMarshalFunc

	logger := zerolog.New(zerolog.NewTestWriter(t)).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		if l == audit.Level {
			return audit.LevelName
		}
		return l.String()
	}

	t.Cleanup(func() {
		log.Logger = previousLogger
		zerolog.DefaultContextLogger = previousContextLogger
		zerolog.LevelFieldMarshalFunc = previousLevelMarshal
	})
}
