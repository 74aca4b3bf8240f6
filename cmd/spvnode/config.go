package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/cobra"
)

func resolveDataDir() (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("spvnode: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".spvnode", "data"), nil
}

func chainParams() *chaincfg.Params {
	if useTestnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "View the node's effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveDataDir()
		if err != nil {
			return err
		}
		params := chainParams()
		fmt.Println("spvnode configuration")
		fmt.Println("----------------------")
		fmt.Printf("Network:         %s\n", params.Name)
		fmt.Printf("Data directory:  %s\n", dir)
		fmt.Printf("Config file:     %s\n", cfgFile)
		fmt.Printf("Verbose logging: %v\n", verboseLogs)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
