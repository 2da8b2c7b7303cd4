package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/drawsync/internal/api"
	"github.com/rickgao/drawsync/internal/config"
	"github.com/rickgao/drawsync/internal/model"
	"github.com/rickgao/drawsync/internal/money"
	"github.com/rickgao/drawsync/internal/resolver"
	"github.com/rickgao/drawsync/internal/wallet"
)

var (
	playsStatus string
	queryWait   time.Duration
)

func init() {
	playsCmd.Flags().StringVar(&playsStatus, "status", "", "filter by backend status (pending, settled)")
	resolveCmd.Flags().DurationVar(&queryWait, "timeout", 0, "overall deadline (default: resolver attempts x interval)")

	rootCmd.AddCommand(playsCmd, resolveCmd, roundCmd, healthCmd)
}

var playsCmd = &cobra.Command{
	Use:   "plays",
	Short: "List the account's tickets as the backend reports them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, client, err := setupQuery()
		if err != nil {
			return err
		}
		price, err := cfg.Ticket.Price()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout)
		defer cancel()

		plays, err := client.GetPlayerPlays(ctx, cfg.Account, playsStatus)
		if err != nil {
			return err
		}

		entries := make([]model.Entry, 0, len(plays))
		for _, p := range plays {
			entries = append(entries, p.ToEntry(price, logger))
		}
		printEntries(cmd.OutOrStdout(), cfg, entries)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <deploy-hash>",
	Short: "Wait for the backend to index a purchase and print its request id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, client, err := setupQuery()
		if err != nil {
			return err
		}
		price, err := cfg.Ticket.Price()
		if err != nil {
			return err
		}

		wait := queryWait
		if wait <= 0 {
			wait = time.Duration(cfg.Resolver.MaxAttempts)*cfg.Resolver.Interval + cfg.API.Timeout
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), wait)
		defer cancel()

		r := resolver.New(resolver.Config{
			MaxAttempts: cfg.Resolver.MaxAttempts,
			Interval:    cfg.Resolver.Interval,
			TicketCost:  price,
		}, client, nil, logger)

		res := r.Resolve(ctx, args[0])
		if res == nil {
			return fmt.Errorf("deploy %s not indexed after %d attempts", args[0], cfg.Resolver.MaxAttempts)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "request_id: %s\n", res.RequestID)
		fmt.Fprintf(out, "play_id:    %s\n", res.Entry.PlayID)
		fmt.Fprintf(out, "round:      %d\n", res.Entry.RoundID)
		fmt.Fprintf(out, "status:     %s\n", res.Entry.Status)
		fmt.Fprintf(out, "explorer:   %s\n", wallet.ExplorerURL(cfg.API.ExplorerURL, res.DeployHash))
		return nil
	},
}

var roundCmd = &cobra.Command{
	Use:   "round",
	Short: "Show the current lottery round",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, client, err := setupQuery()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout)
		defer cancel()

		current, err := client.GetCurrentLottery(ctx)
		if err != nil {
			return err
		}
		round := current.ToRound(time.Now(), logger)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "round:      %d\n", round.RoundID)
		fmt.Fprintf(out, "next play:  %s\n", round.NextPlayIDHint)
		fmt.Fprintf(out, "prize pool: %s CSPR (%s)\n",
			money.FormatWithCommas(round.PrizePool, cfg.Ticket.DisplayPlaces),
			money.Compact(round.PrizePool, 1),
		)
		if round.TotalPlays != nil {
			fmt.Fprintf(out, "plays:      %d\n", *round.TotalPlays)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, client, err := setupQuery()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout)
		defer cancel()

		start := time.Now()
		if err := client.Health(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s ok (%s)\n", client.BaseURL(), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

// setupQuery loads config and builds a client for one-shot commands. Logs
// go to stderr so stdout stays clean.
func setupQuery() (*config.Config, *slog.Logger, *api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	return cfg, logger, newClient(cfg, logger), nil
}

func printEntries(w io.Writer, cfg *config.Config, entries []model.Entry) {
	places := cfg.Ticket.DisplayPlaces

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAY\tROUND\tSTATUS\tPRIZE\tENTERED\tREQUEST")
	for _, e := range entries {
		prize := "-"
		if e.PrizeAmount != nil {
			prize = money.Format(*e.PrizeAmount, places)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			e.PlayID,
			e.RoundID,
			e.Status,
			prize,
			e.EntryDate.Local().Format(time.DateTime),
			e.RequestID,
		)
	}
	tw.Flush()

	s := model.Summarize(entries)
	fmt.Fprintf(w, "\n%d tickets, %d pending, %d wins\n", len(entries), s.Pending, s.Wins)
	fmt.Fprintf(w, "spent %s CSPR, won %s CSPR, net %s CSPR\n",
		money.FormatWithCommas(s.TotalSpent, places),
		money.FormatWithCommas(s.TotalWon, places),
		money.FormatWithCommas(s.NetProfit, places),
	)
}
