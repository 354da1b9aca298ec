package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dynaform/core/internal/configfile"
	"github.com/dynaform/core/internal/storage/factory"
)

var initDSN string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .dynaform/config.toml in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configfile.DefaultConfig()
		if initDSN != "" {
			cfg.DSN = initDSN
		}
		if err := cfg.Save("."); err != nil {
			return err
		}
		fmt.Printf("wrote %s (dsn: %s)\n", configfile.Path("."), cfg.DSN)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initDSN, "dsn", "memory://",
		fmt.Sprintf("storage DSN (%q or a dolt DSN)", factory.BackendMemory))
	rootCmd.AddCommand(initCmd)
}
