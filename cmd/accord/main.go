// Command accord runs the chat-and-voice server: the main node (REST +
// gateway + voice coordination) or an SFU edge agent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/accord-chat/accord/internal/config"
	"github.com/accord-chat/accord/internal/store"
)

// version is stamped via -ldflags at release time.
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "accord",
		Short:         "Accord chat and voice server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the server (main node, or SFU agent when ACCORD_MODE=sfu)",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				if cfg.Mode == config.ModeSfu {
					return runSfu(cfg)
				}
				return runServe(cfg)
			},
		},
		&cobra.Command{
			Use:   "sfu",
			Short: "Run the SFU edge agent",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				cfg.Mode = config.ModeSfu
				if err := cfg.Validate(); err != nil {
					return err
				}
				return runSfu(cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				return store.Migrate(cfg.Database.URL)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("accord %s\n", version)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "accord: %v\n", err)
		os.Exit(1)
	}
}
