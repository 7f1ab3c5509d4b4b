package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dataops/ingestd/crdb"
	"github.com/dataops/ingestd/gologger"
	"github.com/dataops/ingestd/http_server"
	"github.com/dataops/ingestd/ledger"
	"github.com/dataops/ingestd/migrations"
	"github.com/dataops/ingestd/repoclient"
	"github.com/dataops/ingestd/utils"
)

var logger = gologger.NewLogger()

func main() {
	logger.Debug().Msg("starting ingestd api")

	var led *ledger.Ledger
	if utils.CRDB_DSN != "" {
		if err := crdb.ConnectToDB(); err != nil {
			logger.Error().Err(err).Msg("error connecting to CRDB")
			os.Exit(1)
		}

		err := migrations.CheckMigrations(utils.CRDB_DSN)
		if err != nil {
			logger.Error().Err(err).Msg("Error checking migrations")
			os.Exit(1)
		}
		led = ledger.New(crdb.PGPool)
	} else {
		logger.Warn().Msg("CRDB_DSN not set, running without the ingest ledger")
	}

	repoClient, err := repoclient.NewClientFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("error creating repository client")
		os.Exit(1)
	}

	httpServer := http_server.StartHTTPServer(repoClient, led)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn().Msg("received shutdown signal!")

	// For AWS ALB needing some time to de-register pod
	// Convert the time to seconds
	sleepTime := utils.GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
	logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

	time.Sleep(time.Second * time.Duration(sleepTime))
	logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server")
	} else {
		logger.Info().Msg("successfully shutdown HTTP server")
	}
}
