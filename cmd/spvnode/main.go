package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile     string
	dataDir     string
	useTestnet  bool
	verboseLogs bool
)

var rootCmd = &cobra.Command{
	Use:     "spvnode",
	Short:   "Bitcoin SPV session coordination node",
	Version: version,
	Long: `spvnode runs the SPV session coordinator: header-sync peer
selection, bloom-filtered merkle-block download scheduling, inflight
bookkeeping with stall recovery, parent-ordered merkle delivery, and
rescan serialization, with a bbolt-backed header store and a read-only
HTTP status API.

Use "spvnode <command> --help" for more information about a command.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (shown by \"config show\"; no config file is loaded)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "datadir", "d", "", "data directory (default is $HOME/.spvnode/data)")
	rootCmd.PersistentFlags().BoolVarP(&useTestnet, "testnet", "t", false, "use testnet")
	rootCmd.PersistentFlags().BoolVarP(&verboseLogs, "verbose", "v", false, "verbose logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
