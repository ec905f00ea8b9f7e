package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	var root = &cobra.Command{
		Use:          "pipelines",
		Short:        "Search-then-synthesize chat pipelines",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")

	root.AddCommand(serveCMD(&cfgPath), modelsCMD(&cfgPath), askCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
