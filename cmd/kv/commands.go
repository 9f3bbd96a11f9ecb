package kv

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ValentinKolb/scdb/cmd/util"
	"github.com/ValentinKolb/scdb/lib/store"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			var err error
			if cmd.Flags().Changed("ttl") {
				ttl, _ := cmd.Flags().GetUint64("ttl")
				err = localStore.SetE(key, value, ttl)
			} else {
				err = localStore.Set(key, value)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, found, err := localStore.Get(key)
			if err != nil {
				return err
			}
			res := getResult{Key: key, Found: found, Value: value}
			return writeOutput(cmd.OutOrStdout(), viper.GetString("output"), res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "key=%s, found=%v, value=%s\n", key, found, value)
				return err
			})
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := localStore.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "delete successfully")
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Deletes all key value pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := localStore.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "clear successfully")
			return nil
		},
	}
	compactCmd = &cobra.Command{
		Use:   "compact",
		Short: "Reclaims the space of deleted and expired entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := localStore.Compact(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "compact successfully")
			return nil
		},
	}
	searchCmd = &cobra.Command{
		Use:   "search [term]",
		Short: "Lists the key value pairs whose key starts with term",
		Long:  "Lists the key value pairs whose key starts with term in ascending key order. The store must be opened with --search.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			skip, _ := cmd.Flags().GetUint64("skip")
			limit, _ := cmd.Flags().GetUint64("limit")
			page, err := localStore.Search(args[0], skip, limit)
			if err != nil {
				return err
			}
			if page == nil {
				page = []store.KeyValue{}
			}
			return writeOutput(cmd.OutOrStdout(), viper.GetString("output"), page, func(w io.Writer) error {
				for _, kv := range page {
					if _, err := fmt.Fprintf(w, "%s=%s\n", kv.Key, kv.Value); err != nil {
						return err
					}
				}
				_, err := fmt.Fprintf(w, "(%d results)\n", len(page))
				return err
			})
		},
	}
)

func init() {
	setCmd.Flags().Uint64("ttl", 0, util.WrapString("Seconds until the entry expires (0 expires it at once, omit for no expiration)"))
	searchCmd.Flags().Uint64("skip", 0, util.WrapString("Number of results to skip"))
	searchCmd.Flags().Uint64("limit", 10, util.WrapString("Maximum number of results (0 = no limit)"))
}
