package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fallpaper/fallpaper/internal/wire"
	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
)

var listSourcesCmd = &cobra.Command{
	Use:   "list-sources",
	Short: "List all configured sources",
	RunE:  runListSources,
}

var listDevicesCmd = &cobra.Command{
	Use:   "list-devices",
	Short: "List all configured devices",
	RunE:  runListDevices,
}

var listRunsCmd = &cobra.Command{
	Use:   "list-runs",
	Short: "List the most recent runs",
	RunE:  runListRuns,
}

func init() {
	rootCmd.AddCommand(listSourcesCmd, listDevicesCmd, listRunsCmd)
}

func runListSources(cmd *cobra.Command, args []string) error {
	app, err := wire.Build(configPath)
	if err != nil {
		return err
	}
	defer app.Store.Close()

	sources, err := app.Store.ListSources(context.Background())
	if err != nil {
		return fperrors.Wrap(err, "list sources failed")
	}
	if len(sources) == 0 {
		fmt.Println("No sources found")
		return nil
	}

	fmt.Printf("%-30s %-10s %-30s %-8s\n", "ID", "ENABLED", "NAME", "KIND")
	for _, s := range sources {
		fmt.Printf("%-30s %-10t %-30s %-8s\n", s.ID, s.Enabled, s.Name, s.Kind)
	}
	return nil
}

func runListDevices(cmd *cobra.Command, args []string) error {
	app, err := wire.Build(configPath)
	if err != nil {
		return err
	}
	defer app.Store.Close()

	devices, err := app.Store.ListDevices(context.Background())
	if err != nil {
		return fperrors.Wrap(err, "list devices failed")
	}
	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	fmt.Printf("%-30s %-10s %-20s %-12s\n", "ID", "ENABLED", "SLUG", "RESOLUTION")
	for _, d := range devices {
		fmt.Printf("%-30s %-10t %-20s %dx%d\n", d.ID, d.Enabled, d.Slug, d.NativeWidth, d.NativeHeight)
	}
	return nil
}

func runListRuns(cmd *cobra.Command, args []string) error {
	app, err := wire.Build(configPath)
	if err != nil {
		return err
	}
	defer app.Store.Close()

	runs, err := app.Store.ListRecentRuns(context.Background(), 20)
	if err != nil {
		return fperrors.Wrap(err, "list runs failed")
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("%-30s %-12s %-7s %-30s\n", "ID", "STATE", "PROGRESS", "MESSAGE")
	for _, r := range runs {
		fmt.Printf("%-30s %-12s %3d/%-3d %-30s\n", r.ID, r.State, r.ProgressCurrent, r.ProgressTotal, r.ProgressMessage)
	}
	return nil
}
