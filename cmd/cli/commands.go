package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/dvloznov/finance-agent/internal/api/handlers"
	"github.com/dvloznov/finance-agent/internal/app"
	"github.com/dvloznov/finance-agent/internal/gcsuploader"
	"github.com/spf13/cobra"
)

func newPromptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Print the compiled system instructions sent to the model",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), agent.Instructions())
		},
	}
}

func newTurnCmd(g *globals) *cobra.Command {
	var userID, chatID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "turn [message]",
		Short: "Run one chat turn through the agent",
		Example: `  finagent turn --memory --user u1 "gastei 50 reais com uber hoje"
  echo '{"message":{"text":"recebi 1000 de salário"}}' | finagent turn --user u1 -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := strings.Join(args, " ")
			if payload == "-" {
				b, err := readAll(cmd)
				if err != nil {
					return err
				}
				payload = string(b)
			}

			a, ctx, err := g.build(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			res := a.Agent.HandleTurn(ctx, agent.Request{UserID: userID, ChatID: chatID, Payload: payload})
			return printResult(cmd, res, asJSON)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID owning the transaction (required)")
	cmd.Flags().StringVar(&chatID, "chat", "", "chat ID to notify")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newReplayCmd(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "replay <gs://bucket/turns/...json>",
		Short: "Re-run an archived turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := args[0]
			bucket, _, err := gcsuploader.ParseGCSURI(uri)
			if err != nil {
				return err
			}

			a, ctx, err := g.build(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			archiver := a.Archiver
			if archiver == nil {
				archiver, err = gcsuploader.NewArchiver(ctx, bucket)
				if err != nil {
					return err
				}
				defer archiver.Close()
			}

			body, err := archiver.Fetch(ctx, uri)
			if err != nil {
				return err
			}
			archived, err := agent.DecodeArchivedTurn(body)
			if err != nil {
				return err
			}

			g.log.Info().
				Str("original_turn_id", archived.TurnID).
				Time("received_at", archived.ReceivedAt).
				Msg("Replaying archived turn")

			res := a.Agent.HandleTurn(ctx, archived.Request())
			return printResult(cmd, res, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newNotionSyncCmd(g *globals) *cobra.Command {
	var userID string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "notion-sync",
		Short: "Backfill a user's stored transactions into the Notion database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := g.build(cmd.Context(), app.Options{Generator: offlineGenerator{}})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if a.Mirror == nil {
				return fmt.Errorf("notion is not configured (set NOTION_TOKEN and FINAGENT_NOTION_DATABASE_ID)")
			}

			res, err := a.Mirror.SyncTransactions(ctx, a.Store, userID, dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created=%d skipped=%d failed=%d\n", res.Created, res.Skipped, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d transactions failed to sync", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID to sync (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be created without writing")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newInterpretationsCmd(g *globals) *cobra.Command {
	var userID string
	var limit int

	cmd := &cobra.Command{
		Use:   "interpretations",
		Short: "List a user's recent interpretations from the audit table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := g.build(cmd.Context(), app.Options{Generator: offlineGenerator{}})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if a.Recorder == nil {
				return fmt.Errorf("audit is not configured (set FINAGENT_AUDIT_PROJECT_ID)")
			}
			records, err := a.Recorder.ListInterpretations(ctx, userID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rec := range records {
				fmt.Fprintf(out, "%s  %-11s  %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Outcome, rec.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printResult(cmd *cobra.Command, res *agent.Result, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(handlers.NewTurnResponse(res)); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "[%s] %s\n", res.Status, res.Reply)
	}
	if res.Status == agent.StatusFailed {
		return res.Err
	}
	return nil
}
