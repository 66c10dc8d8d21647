package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fallpaper/fallpaper/internal/wire"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and run processor until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := wire.Build(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Scheduler.Start(ctx); err != nil {
		app.Store.Close()
		return err
	}

	app.Log.Info("fallpaperd_started").Send()
	<-ctx.Done()
	app.Log.Info("fallpaperd_shutting_down").Send()

	return app.Shutdown()
}
