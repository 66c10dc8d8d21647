package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fallpaperd",
	Short: "fallpaperd - self-hosted media-collection daemon",
	Long:  `Fetches images from upstream sources, filters them per device, and fans them out to per-device directories.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the FALLPAPER_* env-style config file")
}
