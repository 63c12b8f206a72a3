package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/meddies/emr-importer/internal/config"
	"github.com/meddies/emr-importer/internal/emr"
	"github.com/meddies/emr-importer/internal/importer"
	"github.com/meddies/emr-importer/internal/source"
	apperrors "github.com/meddies/emr-importer/pkg/errors"
	"github.com/meddies/emr-importer/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Output: os.Stdout,
	})

	// Load the record file up front so a bad path fails before login
	records, err := source.NewReader(cfg.Input.File, appLog).ReadAll()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load patient records")
	}
	if len(records) == 0 {
		log.Fatal().Str("file", cfg.Input.File).Msg("no patient records to import")
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	session, err := emr.NewSession(emr.Config{
		BaseURL:            cfg.Target.BaseURL,
		Username:           cfg.Target.Username,
		Password:           cfg.Target.Password,
		Timeout:            cfg.Target.Timeout(),
		InsecureSkipVerify: cfg.Target.InsecureSkipVerify,
		Limiter:            limiter,
	}, appLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create web session")
	}

	// An interrupt cancels the context, which ends the run between calls
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := importer.NewService(session, appLog)

	report, err := svc.Run(ctx, records)
	if err != nil {
		if report != nil {
			report.Log(appLog)
		}
		if apperrors.IsUnauthorized(err) {
			log.Fatal().Err(err).Msg("login failed, check target credentials")
		}
		log.Fatal().Err(err).Msg("import aborted")
	}

	report.Log(appLog)
}
