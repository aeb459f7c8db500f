package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"inkvoice/internal/assembly"
	"inkvoice/internal/daemon"
	"inkvoice/internal/events"
	"inkvoice/internal/library"
	"inkvoice/internal/logging"
	"inkvoice/internal/media/audioproc"
	"inkvoice/internal/narration"
	"inkvoice/internal/preview"
	"inkvoice/internal/queue"
	"inkvoice/internal/tts"
	"inkvoice/internal/workflow"
)

const eventHubCapacity = 1024

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon lifecycle",
	}
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:          "run",
		Short:        "Run the inkvoice daemon in the foreground",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := queue.Open(cfg)
			if err != nil {
				logger.Error("open job store", logging.Error(err))
				return err
			}
			defer store.Close()

			catalog, err := library.Open(cfg)
			if err != nil {
				logger.Error("open library", logging.Error(err))
				return err
			}
			defer catalog.Close()

			provider, err := tts.NewProvider(cfg, logger)
			if err != nil {
				return fmt.Errorf("init speech provider: %w", err)
			}
			voices := tts.NewCatalogFromConfig(cfg, provider)
			hub := events.NewHub(eventHubCapacity)

			manager := workflow.NewManager(cfg, store, hub, logger)
			manager.Configure(workflow.StageSet{
				Narration: narration.NewStage(cfg, store, catalog, provider, hub, logger),
				Assembly:  assembly.NewStage(cfg, store, catalog, audioproc.NewProcessor(cfg, logger), hub, logger),
			})

			var previews *preview.Cache
			if cfg.Preview.Enabled {
				previews = preview.NewCache(cfg, catalog, provider, logger)
			}

			d, err := daemon.New(cfg, daemon.Components{
				Store:    store,
				Workflow: manager,
				Hub:      hub,
				Previews: previews,
				Voices:   voices,
			}, logger)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}

			<-signalCtx.Done()
			logger.Info("inkvoice daemon shutting down")
			d.Stop()
			return nil
		},
	}
}
