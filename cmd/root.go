package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ValentinKolb/scdb/cmd/kv"
	"github.com/ValentinKolb/scdb/cmd/util"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "scdb",
		Short: "persistent key-value store with blocking and async handles",
		Long: fmt.Sprintf(`scdb (v%s)

A persistent key-value store library written in Go. It offers
a blocking handle for a single owner and an async handle that
can be shared by any number of goroutines, on top of the maple,
sqlite or leveldb storage engine.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of scdb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scdb v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("log level (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
