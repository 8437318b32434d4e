package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var root = &cobra.Command{
		Use:          "lumina",
		Short:        "Lumina blog backend",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(serveCMD(), migrateCMD(), fixSummariesCMD(), publishDueCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
