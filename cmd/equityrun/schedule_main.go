package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/equityrun/equityrun/internal/scheduler"
)

func runSchedule(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Schedule) == 0 {
		return fmt.Errorf("no schedule section in config")
	}
	pipeline, cleanup, err := buildPipeline(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sched := scheduler.New(cfg.Schedule, pipeline, os.Stdout, log.Logger)
	if err := sched.Start(); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("stopping scheduler")
	sched.Stop()
	return nil
}
