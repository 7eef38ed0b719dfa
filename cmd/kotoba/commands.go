package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kotoba/common/version"
	"github.com/bdobrica/Kotoba/internal/kotoba/app"
	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
	"github.com/bdobrica/Kotoba/internal/kotoba/turn"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when configured, the Matrix bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run()
		},
	}
}

func askCmd() *cobra.Command {
	var (
		userID  int64
		token   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ask <utterance>",
		Short: "Run one turn and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			reply, err := a.Turns().HandleTurn(ctx, turn.Request{
				Utterance:  strings.Join(args, " "),
				UserID:     userID,
				Credential: token,
			})
			if errors.Is(err, turn.ErrInvalidInput) {
				return errors.New("message is required")
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "backend user id to act as")
	cmd.Flags().StringVar(&token, "token", "", "backend bearer token")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "give up after this long")
	return cmd
}

func operationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List the operation catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printOperations(cmd.OutOrStdout(), registry.Default())
		},
	}
}

func printOperations(w io.Writer, reg *registry.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPARAMS\tDESCRIPTION")
	for _, op := range reg.List() {
		params := make([]string, 0, len(op.Params))
		for _, p := range op.Params {
			s := p.Name + ":" + string(p.Type)
			if !p.Required {
				s += "?"
			}
			params = append(params, s)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", op.Name, strings.Join(params, ","), op.Description)
	}
	return tw.Flush()
}

func auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audited operation calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DBPath == "" {
				return errors.New("no database configured (KOTOBA_DB_PATH)")
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			recs, err := a.Store().RecentCalls(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printCalls(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of calls to show")
	return cmd
}

func printCalls(w io.Writer, recs []ops.CallRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTRACE\tUSER\tOPERATION\tOUTCOME\tDURATION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.At.Local().Format(time.DateTime), r.TraceID, r.UserID, r.Operation, r.Outcome, r.Duration.Round(time.Millisecond))
	}
	return tw.Flush()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "kotoba", version.Info())
		},
	}
}
