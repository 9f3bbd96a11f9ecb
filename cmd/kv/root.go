package kv

import (
	"github.com/spf13/cobra"

	"github.com/ValentinKolb/scdb/cmd/util"
	"github.com/ValentinKolb/scdb/lib/store"
	"github.com/ValentinKolb/scdb/lib/store/bstore"
)

var (
	localStore store.IStore

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations on a local store",
		PersistentPreRunE:  setupKVStore,
		PersistentPostRunE: closeKVStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add store flags to the KV command
	util.SetupStoreFlags(KeyValueCommands)

	KeyValueCommands.PersistentFlags().String("output", "text", util.WrapString("Output format (text, json, yaml)"))

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(compactCmd)
	KeyValueCommands.AddCommand(searchCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVStore binds the flags, configures logging and opens the local store
func setupKVStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.SetupLogging(); err != nil {
		return err
	}

	// the perf command opens its own throw-away stores
	if cmd == perfTestCmd {
		return nil
	}

	var err error
	localStore, err = bstore.New(util.GetStoreConfig())
	return err
}

// closeKVStore releases the local store after a command ran
func closeKVStore(_ *cobra.Command, _ []string) error {
	if localStore == nil {
		return nil
	}
	err := localStore.Close()
	localStore = nil
	return err
}
