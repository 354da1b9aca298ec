// Command dynaform is the CLI front end for the dynamic-schema EAV data
// store (spec.md §4, SPEC_FULL.md §9). Grounded on cmd/bd's root-command
// layout: package-level state set up once in PersistentPreRun, subcommands
// split one-file-per-noun, cobra command groups for help organization.
// Unlike cmd/bd, dynaform has no daemon/RPC mode to fall back from — every
// invocation opens the storage backend directly via internal/engine and
// tears it down in PersistentPostRun.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dynaform/core/internal/configfile"
	"github.com/dynaform/core/internal/engine"
	_ "github.com/dynaform/core/internal/storage/dolt"
	_ "github.com/dynaform/core/internal/storage/memory"
)

const (
	groupSchema = "schema"
	groupEntity = "entity"
	groupReport = "report"
	groupAdmin  = "admin"
)

var (
	// dsnFlag overrides the project config's DSN for this invocation.
	dsnFlag string
	// actorFlag names the user bound to the session's context for audited
	// writes (spec.md §5/§6). Falls back to the project config's
	// default_actor, then $USER, matching the teacher's --actor/$USER
	// fallback chain.
	actorFlag string
	jsonOutput bool

	eng    *engine.Engine
	rootCtx context.Context
)

var rootCmd = &cobra.Command{
	Use:   "dynaform",
	Short: "dynaform - a dynamic-schema entity/attribute/value data store",
	Long:  `Author schemata (forms), store entities against them, and project reports, all from the command line.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		name := cmd.Name()
		if name == "init" || name == "help" || name == "completion" || name == "version" {
			return nil
		}

		cfg, err := configfile.Load(".")
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if dsnFlag != "" {
			cfg.DSN = dsnFlag
		} else if v := viper.GetString("dsn"); v != "" {
			cfg.DSN = v
		}

		eng, err = engine.Init(rootCtx, *cfg)
		if err != nil {
			return fmt.Errorf("starting engine: %w", err)
		}

		if actorFlag == "" {
			actorFlag = cfg.DefaultActor
		}
		if actorFlag == "" {
			actorFlag = os.Getenv("USER")
		}
		if actorFlag != "" {
			rootCtx = engine.WithUser(rootCtx, actorFlag)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if eng == nil {
			return nil
		}
		return eng.Teardown()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupSchema, Title: "Schema:"},
		&cobra.Group{ID: groupEntity, Title: "Entities:"},
		&cobra.Group{ID: groupReport, Title: "Reports:"},
		&cobra.Group{ID: groupAdmin, Title: "Admin:"},
	)

	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "storage DSN (default: .dynaform/config.toml's dsn, or memory://)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "actor name for audit trail (default: config default_actor or $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	viper.SetEnvPrefix("DYNAFORM")
	viper.AutomaticEnv()
}

func main() {
	var cancel context.CancelFunc
	rootCtx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
