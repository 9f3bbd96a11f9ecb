package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ValentinKolb/scdb/lib/common"
	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/engine/engines"
	"github.com/ValentinKolb/scdb/lib/store"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// StoreFlags returns the flags configuring the local store
func StoreFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("store", pflag.ContinueOnError)

	key := "path"
	fs.String(key, "./scdb-data", WrapString("Directory of the store, created if it does not exist"))

	key = "engine"
	fs.String(key, string(engine.ImplMaple), WrapString(fmt.Sprintf("The storage engine to use (%s)", joinImpls(engines.Available()))))

	key = "max-keys"
	fs.Uint64(key, engine.DefaultMaxKeys, WrapString("Maximum number of keys the store accepts"))

	key = "redundant-blocks"
	fs.Uint16(key, engine.DefaultRedundantBlocks, WrapString("Number of previous log generations the maple engine keeps after a compaction"))

	key = "pool-capacity"
	fs.Uint64(key, engine.DefaultPoolCapacity, WrapString("Number of 64 KiB buffers the engine uses for caching and buffering"))

	key = "compaction-interval"
	fs.Uint32(key, uint32(engine.DefaultCompactionInterval.Seconds()), WrapString("Interval of the background compaction in seconds (0 disables it)"))

	key = "search"
	fs.Bool(key, false, WrapString("Enable prefix search for the store"))

	return fs
}

// SetupStoreFlags adds the flags configuring the local store to a command
func SetupStoreFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().AddFlagSet(StoreFlags())
}

// InitConfig loads .env files and initializes viper to read environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("scdb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetStoreConfig reads the store configuration from viper.
// Tunables that were neither passed as flag nor set in the environment keep the engine default.
func GetStoreConfig() store.Config {
	cfg := store.Config{
		StorePath:       viper.GetString("path"),
		Engine:          engine.Implementation(viper.GetString("engine")),
		IsSearchEnabled: viper.GetBool("search"),
	}
	if viper.IsSet("max-keys") {
		cfg.MaxKeys = store.Ptr(viper.GetUint64("max-keys"))
	}
	if viper.IsSet("redundant-blocks") {
		cfg.RedundantBlocks = store.Ptr(uint16(viper.GetUint("redundant-blocks")))
	}
	if viper.IsSet("pool-capacity") {
		cfg.PoolCapacity = store.Ptr(viper.GetUint64("pool-capacity"))
	}
	if viper.IsSet("compaction-interval") {
		cfg.CompactionInterval = store.Ptr(viper.GetUint32("compaction-interval"))
	}
	return cfg
}

// SetupLogging configures all loggers to write human-readable output to stderr
func SetupLogging() error {
	level := viper.GetString("log-level")
	if level == "" {
		level = "warn"
	}
	return common.InitLoggers(level, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

func joinImpls(impls []engine.Implementation) string {
	names := make([]string, len(impls))
	for i, impl := range impls {
		names[i] = string(impl)
	}
	return strings.Join(names, ", ")
}
