package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/internal/wire"
)

var runCmd = &cobra.Command{
	Use:   "run <source-id>",
	Short: "Create a manual pending run for a source and process it immediately",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	sourceID := args[0]

	app, err := wire.Build(configPath)
	if err != nil {
		return err
	}
	defer app.Store.Close()

	ctx := context.Background()

	run, err := app.RunProc.CreateManualRun(ctx, sourceID)
	if err != nil {
		return fperrors.Wrap(err, "create manual run failed")
	}

	if err := app.RunProc.TriggerProcessing(ctx); err != nil {
		return fperrors.Wrap(err, "trigger processing failed")
	}

	result, err := app.Store.GetRun(ctx, run.ID)
	if err != nil {
		return fperrors.Wrap(err, "reload run failed")
	}

	fmt.Printf("run %s: state=%s progress=%d/%d %s\n",
		result.ID, result.State, result.ProgressCurrent, result.ProgressTotal, result.ProgressMessage)
	return nil
}
