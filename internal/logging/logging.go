package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mvailland/cyrano/internal/config"
)

// Setup configures the global logger. When cfg.File is set, a rotating file
// sink is attached alongside stderr.
func Setup(cfg config.LoggingConfig) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var console io.Writer = os.Stderr
	if cfg.Format == "console" {
		console = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	writer := console
	if cfg.File != "" {
		sink, err := rotatelogs.New(
			cfg.File+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.File),
			rotatelogs.WithMaxAge(time.Duration(cfg.MaxAgeDays)*24*time.Hour),
			rotatelogs.WithRotationTime(cfg.RotateEvery),
		)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writer = zerolog.MultiLevelWriter(console, sink)
	}

	log.Logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return nil
}
