package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	httpdelivery "perp-autotrader/internal/delivery/http"
	"perp-autotrader/internal/usecase"
)

func newCycleCmd(configPath *string) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one auto-trade cycle and print the result",
		Long: `Run one auto-trade cycle and print the result.

With --server the cycle is requested from a running serve process through
POST /api/autotrade/cycle and shares its guard against overlapping entries.
Without it the cycle runs in this process: do not do that while serve is
trading the same account, the two processes cannot see each other's entries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if server != "" {
				return remoteCycle(cmd, server)
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			a.engine.Start(ctx)
			defer a.engine.Stop()

			responder := &usecase.BufferResponder{}
			report, err := a.engine.Orchestrator.RunCycle(ctx, responder)
			if text := responder.String(); text != "" {
				cmd.Println(text)
			}
			if report != nil {
				cmd.Printf("outcome: %s (%s), opened: %d\n", report.Outcome, report.Duration.Round(time.Millisecond), len(report.Opened))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "base URL of a running serve process, e.g. http://localhost:8080")
	return cmd
}

// remoteCycle asks a running server for a cycle. Error statuses carry either a cycle
// report or a plain message.
func remoteCycle(cmd *cobra.Command, server string) error {
	resp, err := resty.New().
		SetTimeout(time.Minute).
		R().
		SetContext(cmd.Context()).
		Post(strings.TrimRight(server, "/") + "/api/autotrade/cycle")
	if err != nil {
		return fmt.Errorf("request cycle: %w", err)
	}

	var body struct {
		httpdelivery.CycleResponse
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("cycle: %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	if body.Reply != "" {
		cmd.Println(body.Reply)
	}
	if body.Outcome != "" {
		cmd.Printf("outcome: %s (%s), opened: %d\n", body.Outcome, body.Duration, len(body.Opened))
	}
	if resp.IsError() {
		msg := body.Message
		if msg == "" {
			msg = resp.Status()
		}
		return fmt.Errorf("cycle: %s", msg)
	}
	return nil
}

func newQuarantineCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "quarantine",
		Short: "List symbols in post-close cooldown",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Quarantine.Load(ctx); err != nil {
				return fmt.Errorf("load quarantine: %w", err)
			}
			entries := a.engine.Quarantine.Active(time.Now())
			if len(entries) == 0 {
				cmd.Println("No symbols in quarantine")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tLAST CLOSE (UTC)\tUNTIL (UTC)\tREMAINING")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.Symbol,
					e.LastClose.UTC().Format("2006-01-02 15:04"),
					e.Until.UTC().Format("2006-01-02 15:04"),
					e.Remaining.Round(time.Minute))
			}
			return w.Flush()
		},
	}
}
