// Kotoba turns Japanese natural-language requests into social-media backend
// operations.
//
// Configuration comes from an optional YAML file (--config or KOTOBA_CONFIG)
// with environment overrides; see internal/kotoba/config for the variables.
//
// Commands:
//
//	kotoba serve                      run the HTTP API (and Matrix bot if configured)
//	kotoba ask "<utterance>"          run one turn and print the reply
//	kotoba operations                 list the operation catalog
//	kotoba audit                      show recent audited operation calls
//	kotoba version                    print build information
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kotoba/common/environment"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "kotoba",
		Short:         "Natural-language front end for the social-media backend",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML (default: $KOTOBA_CONFIG)")

	root.AddCommand(serveCmd())
	root.AddCommand(askCmd())
	root.AddCommand(operationsCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the config path, loads it and installs the logger.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		environment.Override(&path, "KOTOBA_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	observability.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
