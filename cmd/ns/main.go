package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"northstar/internal/app"
	"northstar/internal/backend"
	"northstar/internal/config"
	"northstar/internal/connectors"
	"northstar/internal/db"
	"northstar/internal/domain"
	"northstar/internal/engine"
	"northstar/internal/migrate"
	"northstar/internal/repo"
	"northstar/internal/server"
	"northstar/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "ns",
	Short: "Northstar CLI",
	Long: `Northstar keeps a small business pointed at the goal that matters most.
It walks the owner through a short preference wizard, suggests goals that fit
the business, versions every goal edit so nothing is lost, connects the data
sources that ground the plan, and drives the research loop that turns a goal
into a saved execution plan. State lives in a local .northstar workspace; the
planning backend is optional and everything degrades to local behavior when
it is unreachable.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("NORTHSTAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("tenant", "", "tenant id (overrides the single workspace tenant)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))
}

func registerCommands() {
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(seasonalityCmd())
	rootCmd.AddCommand(prefsCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(researchCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(connectorCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(oauthCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func tenantCmd() *cobra.Command {
	tenant := &cobra.Command{Use: "tenant", Short: "Manage tenants"}
	tenant.AddCommand(tenantInitCmd())
	tenant.AddCommand(tenantListCmd())
	tenant.AddCommand(tenantShowCmd())
	tenant.AddCommand(tenantConfigCmd())
	return tenant
}

func tenantInitCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, conn repo.Repo) error {
				e := engine.New(conn.DB, config.Default(id), nil)
				t, err := e.InitTenant(ctx, id, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "tenant id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func tenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTenants(ctx)
				if err != nil {
					return err
				}
				return printJSONOrDump(items)
			})
		},
	}
}

func tenantShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				t, err := e.Repo.GetTenant(ctx, tenantID)
				if err != nil {
					return err
				}
				return printJSONOrDump(t)
			})
		},
	}
}

func tenantConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Tenant configuration"}
	cfgCmd.AddCommand(tenantConfigShowCmd())
	cfgCmd.AddCommand(tenantConfigImportCmd())
	cfgCmd.AddCommand(tenantConfigInitCmd())
	return cfgCmd
}

func tenantConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored tenant config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				cfg, err := e.Repo.GetTenantConfig(ctx, tenantID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cfg)
				}
				out, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	}
}

func tenantConfigImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a config file into the tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				cfg, err := config.FromFile(file)
				if err != nil {
					return err
				}
				cfg.Tenant.ID = tenantID
				if err := e.Repo.UpsertTenantConfig(ctx, tenantID, cfg); err != nil {
					return err
				}
				fmt.Printf("Imported %s into tenant %s\n", file, tenantID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a northstar.yml")
	return cmd
}

func tenantConfigInitCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default northstar.yml to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = "my-business"
			}
			fmt.Print(config.GenerateDefault(id))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "tenant id to embed")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tenant status",
		Long:  "The scoreboard: assistant mode, research status, goal and plan counts, connector health.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				state, err := e.State(ctx, tenantID)
				if err != nil {
					return err
				}
				goals, err := e.Repo.ListGoals(ctx, tenantID)
				if err != nil {
					return err
				}
				plans, err := e.Repo.ListPlans(ctx, tenantID)
				if err != nil {
					return err
				}
				conns := e.ListConnectors(ctx, tenantID)
				summary := connectors.Summarize(conns)
				prefsConfirmed, err := e.PreferencesConfirmed(ctx, tenantID)
				if err != nil {
					return err
				}
				sources, err := e.DataSources(ctx, tenantID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"tenant_id":       tenantID,
					"mode":            state.Mode,
					"research_status": state.ResearchStatus,
					"goals":           len(goals),
					"plans":           len(plans),
					"connectors":      summary,
					"prefs_confirmed": prefsConfirmed,
					"data_sources":    len(sources),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Tenant: %s\n", tenantID)
				fmt.Printf("Mode: %s  Research: %s\n", state.Mode, state.ResearchStatus)
				if state.LastRunID != "" {
					fmt.Printf("Last run: %s (%s)\n", state.LastRunID, state.LastRunStatus)
				}
				fmt.Printf("Goals: %d  Plans: %d  Data sources: %d\n", len(goals), len(plans), len(sources))
				fmt.Printf("Connectors: %d synced, %d failed, %d skipped\n", summary.Synced, summary.Failed, summary.Skipped)
				if !prefsConfirmed {
					fmt.Println("Preferences not confirmed yet; run `ns prefs start`.")
				}
				return nil
			})
		},
	}
}

func seasonalityCmd() *cobra.Command {
	var metric, frequency string
	cmd := &cobra.Command{
		Use:   "seasonality",
		Short: "Show or set the seasonality view",
		Long:  "Without flags, prints the tenant's last-used metric and frequency. With --metric or --frequency, updates the selection.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				if metric != "" || frequency != "" {
					m, f, err := e.SeasonalitySelection(ctx, tenantID)
					if err != nil {
						return err
					}
					if metric == "" {
						metric = m
					}
					if frequency == "" {
						frequency = f
					}
					if err := e.SetSeasonalitySelection(ctx, tenantID, metric, frequency); err != nil {
						return err
					}
				}
				m, f, err := e.SeasonalitySelection(ctx, tenantID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"metric": m, "frequency": f})
				}
				fmt.Printf("Seasonality: %s by %s\n", m, f)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "metric to chart (e.g. revenue, orders)")
	cmd.Flags().StringVar(&frequency, "frequency", "", "bucketing frequency (e.g. monthly, weekly)")
	return cmd
}

func prefsCmd() *cobra.Command {
	prefs := &cobra.Command{
		Use:   "prefs",
		Short: "Preference wizard",
		Long:  "A five step wizard (business type, focus, pace, budget, markets) whose confirmed answers steer goal suggestions. Selections toggle; confirming is terminal for the session.",
	}
	prefs.AddCommand(prefsStartCmd())
	prefs.AddCommand(prefsSetCmd())
	prefs.AddCommand(prefsStepCmd("next", "Advance to the next step"))
	prefs.AddCommand(prefsStepCmd("back", "Return to the previous step"))
	prefs.AddCommand(prefsSimpleCmd("reset", "Clear all selections", (*engine.Engine).ResetPreferences))
	prefs.AddCommand(prefsSimpleCmd("confirm", "Confirm and close the wizard", (*engine.Engine).ConfirmPreferences))
	prefs.AddCommand(prefsSimpleCmd("skip", "Skip the wizard", (*engine.Engine).SkipPreferences))
	prefs.AddCommand(prefsShowCmd())
	return prefs
}

func prefsStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Open the wizard (reuses an open session)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				s, err := e.StartPreferences(ctx, tenantID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(s)
			})
		},
	}
}

func prefsSetCmd() *cobra.Command {
	var field, value string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Toggle or set one field",
		RunE: func(cmd *cobra.Command, args []string) error {
			if field == "" {
				return fmt.Errorf("--field required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				s, err := e.UpdatePreference(ctx, tenantID, field, value, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(s)
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "business_type | objective_focus | operating_pace | budget | markets | other_needs")
	cmd.Flags().StringVar(&value, "value", "", "option to toggle, or free text for other_needs")
	return cmd
}

func prefsStepCmd(direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				actor := viper.GetString("actor-id")
				var (
					s   domain.PreferenceSession
					err error
				)
				if direction == "back" {
					s, err = e.BackPreferences(ctx, tenantID, actor)
				} else {
					s, err = e.AdvancePreferences(ctx, tenantID, actor)
				}
				if err != nil {
					return err
				}
				return printJSONOrDump(s)
			})
		},
	}
}

func prefsSimpleCmd(use, short string, fn func(*engine.Engine, context.Context, string, string) (domain.PreferenceSession, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				s, err := fn(e, ctx, tenantID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(s)
			})
		},
	}
}

func prefsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the confirmed preference record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				rec, summary, err := e.CurrentPreferences(ctx, tenantID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"record": rec, "summary": summary})
				}
				fmt.Println(summary)
				return nil
			})
		},
	}
}

func goalCmd() *cobra.Command {
	goal := &cobra.Command{
		Use:   "goal",
		Short: "Manage goals",
		Long:  "Goals are versioned: every edit appends a new version, rollback moves the pointer without deleting anything, and editing after a rollback forks from the rolled-back version.",
	}
	goal.AddCommand(goalSuggestCmd())
	goal.AddCommand(goalSelectCmd())
	goal.AddCommand(goalListCmd())
	goal.AddCommand(goalEditCmd())
	goal.AddCommand(goalHistoryCmd())
	goal.AddCommand(goalRollbackCmd())
	goal.AddCommand(goalActivateCmd())
	goal.AddCommand(goalDiffCmd())
	goal.AddCommand(goalValidateCmd())
	goal.AddCommand(goalProgressCmd())
	return goal
}

func goalSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "Suggest goals for the confirmed preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				goals, err := e.SuggestGoals(ctx, tenantID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(goals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Duration", "Impact"})
				for _, g := range goals {
					tw.AppendRow(table.Row{g.ID, g.Title, g.Priority, g.EstimatedDuration, g.ExpectedImpact})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func goalSelectCmd() *cobra.Command {
	var id, title string
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Select a suggested goal (creates draft version 1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" && title == "" {
				return fmt.Errorf("--id or --title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				var pick domain.SuggestedGoal
				if id != "" {
					goals, err := e.SuggestGoals(ctx, tenantID)
					if err != nil {
						return err
					}
					for _, g := range goals {
						if g.ID == id {
							pick = g
							break
						}
					}
					if pick.ID == "" {
						return fmt.Errorf("goal %q not among current suggestions", id)
					}
				} else {
					pick = domain.SuggestedGoal{Title: title, Priority: "medium"}
				}
				v, err := e.SelectGoal(ctx, tenantID, pick, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(v)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "suggestion id to select")
	cmd.Flags().StringVar(&title, "title", "", "custom goal title (skips the catalog)")
	return cmd
}

func goalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List goals at their latest version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				goals, err := e.Repo.ListGoals(ctx, tenantID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(goals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Goal", "Version", "Status", "Title"})
				for _, g := range goals {
					tw.AppendRow(table.Row{g.GoalID, g.Version, g.Status, g.Title})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func goalEditCmd() *cobra.Command {
	var goalID, title, description, timeline, change string
	var metricsJSON string
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Append a new goal version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" {
				return fmt.Errorf("--goal required")
			}
			in := version.Input{
				Title:             title,
				Description:       description,
				Timeline:          timeline,
				ChangeDescription: change,
			}
			if metricsJSON != "" {
				if err := json.Unmarshal([]byte(metricsJSON), &in.Metrics); err != nil {
					return fmt.Errorf("parse --metrics: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				v, err := e.EditGoal(ctx, goalID, in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(v)
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&timeline, "timeline", "", "new timeline")
	cmd.Flags().StringVar(&change, "change", "", "what changed and why")
	cmd.Flags().StringVar(&metricsJSON, "metrics", "", `metrics as JSON, e.g. [{"name":"waste","target":10,"unit":"%"}]`)
	return cmd
}

func goalHistoryCmd() *cobra.Command {
	var goalID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the version history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" {
				return fmt.Errorf("--goal required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				h, err := e.GoalHistory(ctx, goalID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(h)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Version", "Status", "Title", "Change", "Current"})
				for _, v := range h.Versions {
					marker := ""
					if v.Version == h.Current {
						marker = "*"
					}
					tw.AppendRow(table.Row{v.Version, v.Status, v.Title, v.ChangeDescription, marker})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	return cmd
}

func goalRollbackCmd() *cobra.Command {
	var goalID string
	var toVersion int
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Move the current pointer to an earlier version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" || toVersion < 1 {
				return fmt.Errorf("--goal and --to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				v, err := e.RollbackGoal(ctx, goalID, toVersion, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(v)
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	cmd.Flags().IntVar(&toVersion, "to", 0, "version number to roll back to")
	return cmd
}

func goalActivateCmd() *cobra.Command {
	var goalID string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate the current draft version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" {
				return fmt.Errorf("--goal required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				v, err := e.ActivateGoal(ctx, goalID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(v)
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	return cmd
}

func goalDiffCmd() *cobra.Command {
	var goalID string
	var from, to int
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff two versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" || from < 1 || to < 1 {
				return fmt.Errorf("--goal, --from and --to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				diff, err := e.DiffGoal(ctx, goalID, from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(diff)
				}
				if len(diff.Added)+len(diff.Removed)+len(diff.Modified) == 0 {
					fmt.Println("No differences.")
					return nil
				}
				for _, line := range diff.Added {
					fmt.Println("+", line)
				}
				for _, line := range diff.Removed {
					fmt.Println("-", line)
				}
				for _, line := range diff.Modified {
					fmt.Println("~", line)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	cmd.Flags().IntVar(&from, "from", 0, "base version")
	cmd.Flags().IntVar(&to, "to", 0, "target version")
	return cmd
}

func goalValidateCmd() *cobra.Command {
	var goalID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "SMART-check the current version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" {
				return fmt.Errorf("--goal required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				res, err := e.ValidateGoal(ctx, goalID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.IsValid {
					fmt.Println("Goal is SMART.")
					return nil
				}
				for i, issue := range res.Issues {
					fmt.Println("-", issue)
					if i < len(res.Suggestions) {
						fmt.Println("  hint:", res.Suggestions[i])
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	return cmd
}

func goalProgressCmd() *cobra.Command {
	var goalID string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Metric progress toward the goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" {
				return fmt.Errorf("--goal required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				p, err := e.GoalProgress(ctx, goalID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"progress": p})
				}
				fmt.Printf("Progress: %.1f%%\n", p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	return cmd
}

func chatCmd() *cobra.Command {
	chat := &cobra.Command{
		Use:   "chat",
		Short: "Converse with the assistant",
		Long:  "Messages go to the planning backend when one is configured. While a clarifying question is pending, the next message answers it instead.",
	}
	chat.AddCommand(chatSendCmd())
	chat.AddCommand(chatTranscriptCmd())
	chat.AddCommand(chatPendingCmd())
	chat.AddCommand(chatAnswerCmd())
	chat.AddCommand(chatSkipCmd())
	chat.AddCommand(chatFeedbackCmd())
	return chat
}

func chatSendCmd() *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Send a message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) > 0 {
				text = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				msgs, err := e.SendMessage(ctx, tenantID, text, files, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(msgs)
				}
				for _, m := range msgs {
					fmt.Printf("[%s] %s\n", m.Role, m.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&files, "file", []string{}, "attached file reference (repeatable)")
	return cmd
}

func chatTranscriptCmd() *cobra.Command {
	var after string
	var limit int
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Show the conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				msgs, err := e.Transcript(ctx, tenantID, after, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(msgs)
				}
				for _, m := range msgs {
					fmt.Printf("[%s] %s\n", m.Role, m.Text)
					if m.Question != nil && m.Question.Answered {
						fmt.Printf("       answered: %s\n", m.Question.Answer)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "message id cursor")
	cmd.Flags().IntVar(&limit, "n", 0, "max messages (0 = all)")
	return cmd
}

func chatPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show the oldest unresolved question",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				m, err := e.PendingQuestion(ctx, tenantID)
				if err != nil {
					return err
				}
				if m == nil {
					fmt.Println("No pending questions.")
					return nil
				}
				return printJSONOrDump(m)
			})
		},
	}
}

func chatAnswerCmd() *cobra.Command {
	var messageID, answer string
	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Answer a question by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if messageID == "" {
				return fmt.Errorf("--message required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				m, err := e.AnswerQuestion(ctx, tenantID, messageID, answer, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(m)
			})
		},
	}
	cmd.Flags().StringVar(&messageID, "message", "", "question message id")
	cmd.Flags().StringVar(&answer, "answer", "", "answer text")
	return cmd
}

func chatSkipCmd() *cobra.Command {
	var messageID string
	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Skip a question by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if messageID == "" {
				return fmt.Errorf("--message required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				m, err := e.SkipQuestion(ctx, tenantID, messageID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(m)
			})
		},
	}
	cmd.Flags().StringVar(&messageID, "message", "", "question message id")
	return cmd
}

func chatFeedbackCmd() *cobra.Command {
	var messageID, feedback string
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Rate an assistant message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if messageID == "" || feedback == "" {
				return fmt.Errorf("--message and --rating required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				return e.SetFeedback(ctx, tenantID, messageID, feedback, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&messageID, "message", "", "assistant message id")
	cmd.Flags().StringVar(&feedback, "rating", "", "up | down")
	return cmd
}

func researchCmd() *cobra.Command {
	research := &cobra.Command{
		Use:   "research",
		Short: "Drive the planning run",
		Long:  "Research moves idle -> researching -> planning -> ready. Start requires every required question to be answered or skipped; ready is where a plan can be saved.",
	}
	research.AddCommand(researchStartCmd())
	research.AddCommand(researchPollCmd())
	research.AddCommand(researchResetCmd())
	return research
}

func researchStartCmd() *cobra.Command {
	var goalID string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Kick off a run for a goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" {
				return fmt.Errorf("--goal required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				state, err := e.StartResearch(ctx, tenantID, goalID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(state)
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	return cmd
}

func researchPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll the run until it settles or the attempt cap is hit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				state, err := e.PollResearch(ctx, tenantID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(state)
			})
		},
	}
}

func researchResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Abandon the current run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				state, err := e.ResetResearch(ctx, tenantID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(state)
			})
		},
	}
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Saved plans"}
	plan.AddCommand(planSaveCmd())
	plan.AddCommand(planDraftCmd())
	plan.AddCommand(planListCmd())
	plan.AddCommand(planShowCmd())
	plan.AddCommand(planRenameCmd())
	plan.AddCommand(planDeleteCmd())
	return plan
}

func planDraftCmd() *cobra.Command {
	var name string
	var clear bool
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Stash or inspect the unsaved plan name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				if clear {
					return e.SetDraftPlanName(ctx, tenantID, "")
				}
				if name != "" {
					return e.SetDraftPlanName(ctx, tenantID, name)
				}
				draft, err := e.DraftPlanName(ctx, tenantID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"name": draft})
				}
				if draft == "" {
					fmt.Println("No draft name stashed.")
					return nil
				}
				fmt.Println(draft)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "draft name to stash")
	cmd.Flags().BoolVar(&clear, "clear", false, "discard the stashed name")
	return cmd
}

func planSaveCmd() *cobra.Command {
	var in engine.PlanInput
	var file string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save the generated plan (research must be ready)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &in); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				p, err := e.SavePlan(ctx, tenantID, in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.GoalID, "goal", "", "goal id")
	cmd.Flags().StringVar(&in.Title, "title", "", "plan title")
	cmd.Flags().StringVar(&in.Summary, "summary", "", "plan summary")
	cmd.Flags().StringVar(&in.EstimatedDuration, "duration", "", "estimated duration")
	cmd.Flags().StringVar(&in.UserProvidedName, "name", "", "user-facing name")
	cmd.Flags().StringArrayVar(&in.QuickWins, "quick-win", []string{}, "quick win (repeatable)")
	cmd.Flags().StringVar(&file, "file", "", "full plan as JSON (overrides flags)")
	return cmd
}

func planListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				plans, err := e.Repo.ListPlans(ctx, tenantID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plans)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Title", "Goal", "Created"})
				for _, p := range plans {
					tw.AppendRow(table.Row{p.ID, p.UserProvidedName, p.Title, p.GoalID, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func planShowCmd() *cobra.Command {
	var planID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a saved plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if planID == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				p, err := e.Repo.GetPlan(ctx, planID)
				if err != nil {
					return err
				}
				return printJSONOrDump(p)
			})
		},
	}
	cmd.Flags().StringVar(&planID, "id", "", "plan id")
	return cmd
}

func planRenameCmd() *cobra.Command {
	var planID, name string
	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Set the user-facing plan name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if planID == "" || name == "" {
				return fmt.Errorf("--id and --name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				p, err := e.RenamePlan(ctx, tenantID, planID, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(p)
			})
		},
	}
	cmd.Flags().StringVar(&planID, "id", "", "plan id")
	cmd.Flags().StringVar(&name, "name", "", "new name")
	return cmd
}

func planDeleteCmd() *cobra.Command {
	var planID string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a saved plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if planID == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				if err := e.DeletePlan(ctx, tenantID, planID, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("Deleted", planID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&planID, "id", "", "plan id")
	return cmd
}

func connectorCmd() *cobra.Command {
	conn := &cobra.Command{
		Use:   "connector",
		Short: "Data source connectors",
		Long:  "Connectors link external systems (POS, storefront, books, analytics) so plans are grounded in real numbers. Sync results come from the backend; the local row mirrors the last known state.",
	}
	conn.AddCommand(connectorCatalogCmd())
	conn.AddCommand(connectorListCmd())
	conn.AddCommand(connectorAddCmd())
	conn.AddCommand(connectorRemoveCmd())
	conn.AddCommand(connectorSyncCmd())
	conn.AddCommand(connectorSyncAllCmd())
	return conn
}

func connectorCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List available connector types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				return printJSONOrDump(e.Registry.CatalogIDs())
			})
		},
	}
}

func connectorListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured connectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				items := e.ListConnectors(ctx, tenantID)
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Name", "Status", "Records", "Last Sync"})
				for _, c := range items {
					badge := connectors.StatusBadge(c.Status)
					tw.AppendRow(table.Row{c.ID, c.ConnectorID, c.DisplayName, badge.Label, c.Metadata.RecordCount, c.LastSync})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func connectorAddCmd() *cobra.Command {
	var connectorID, displayName, status string
	var settings []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Configure a connector from the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if connectorID == "" {
				return fmt.Errorf("--type required")
			}
			cfgMap := map[string]string{}
			for _, kv := range settings {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("bad --set %q, expected key=value", kv)
				}
				cfgMap[parts[0]] = parts[1]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				c, err := e.AddConnector(ctx, tenantID, connectorID, displayName, status, cfgMap, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(c)
			})
		},
	}
	cmd.Flags().StringVar(&connectorID, "type", "", "catalog connector id (e.g. square-pos)")
	cmd.Flags().StringVar(&displayName, "name", "", "display name")
	cmd.Flags().StringVar(&status, "status", "", "initial status (default active)")
	cmd.Flags().StringArrayVar(&settings, "set", []string{}, "config entry key=value (repeatable)")
	return cmd
}

func connectorRemoveCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a connector",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				if err := e.RemoveConnector(ctx, tenantID, id, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("Removed", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "connector row id")
	return cmd
}

func connectorSyncCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync one connector",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				c, err := e.SyncConnector(ctx, tenantID, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(c)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "connector row id")
	return cmd
}

func connectorSyncAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-all",
		Short: "Sync every connector",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				summary, err := e.SyncAllConnectors(ctx, tenantID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				fmt.Printf("Synced %d, failed %d, skipped %d of %d connectors\n", summary.Synced, summary.Failed, summary.Skipped, summary.Total)
				return nil
			})
		},
	}
}

func inviteCmd() *cobra.Command {
	invite := &cobra.Command{Use: "invite", Short: "Team invitations"}
	invite.AddCommand(inviteCreateCmd())
	invite.AddCommand(inviteListCmd())
	invite.AddCommand(inviteAcceptCmd())
	invite.AddCommand(inviteResendCmd())
	invite.AddCommand(inviteRevokeCmd())
	return invite
}

func inviteCreateCmd() *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Invite a teammate by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				inv, err := e.CreateInvitation(ctx, tenantID, email, role, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(inv)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "invitee email")
	cmd.Flags().StringVar(&role, "role", "member", "role for the invitee")
	return cmd
}

func inviteListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				items, err := e.ListInvitations(ctx, tenantID, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Role", "Status", "Expires"})
				for _, inv := range items {
					tw.AppendRow(table.Row{inv.ID, inv.Email, inv.Role, inv.Status, inv.ExpiresAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func inviteAcceptCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "accept",
		Short: "Accept a pending invitation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				inv, err := e.AcceptInvitation(ctx, tenantID, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(inv)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "invitation id")
	return cmd
}

func inviteRevokeCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a pending invitation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				inv, err := e.RevokeInvitation(ctx, tenantID, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(inv)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "invitation id")
	return cmd
}

func inviteResendCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Resend a pending invitation with a fresh deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				inv, err := e.ResendInvitation(ctx, tenantID, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrDump(inv)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "invitation id")
	return cmd
}

func oauthCmd() *cobra.Command {
	oauth := &cobra.Command{Use: "oauth", Short: "Connector authorization flows"}
	oauth.AddCommand(oauthProvidersCmd())
	oauth.AddCommand(oauthBeginCmd())
	oauth.AddCommand(oauthCompleteCmd())
	return oauth
}

func oauthProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers the backend can authorize",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				items, err := e.OAuthProviders(ctx)
				if err != nil {
					return err
				}
				return printJSONOrDump(items)
			})
		},
	}
}

func oauthBeginCmd() *cobra.Command {
	var provider, redirectURI string
	cmd := &cobra.Command{
		Use:   "begin",
		Short: "Start an authorization flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				return fmt.Errorf("--provider required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				url, state, err := e.BeginOAuth(ctx, tenantID, provider, redirectURI)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"url": url, "state": state})
				}
				fmt.Println("Open in a browser:", url)
				fmt.Println("State:", state)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider id")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "callback URI")
	return cmd
}

func oauthCompleteCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete an authorization flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if state == "" {
				return fmt.Errorf("--state required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				provider, err := e.CompleteOAuth(ctx, tenantID, state)
				if err != nil {
					return err
				}
				fmt.Println("Authorized provider:", provider)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "state returned by the provider callback")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "API keys for the HTTP server"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (raw key shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := make([]byte, 32)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				rawKey := "nsk_" + hex.EncodeToString(raw)
				now := time.Now().UTC().Format(time.RFC3339)
				actorID := viper.GetString("actor-id")
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.EnsureActor(ctx, tx, actorID, now); err != nil {
					return err
				}
				k := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(rawKey),
					CreatedAt: now,
				}
				if err := r.InsertAPIKey(ctx, tx, k); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": k.ID, "key": rawKey})
				}
				fmt.Println("Key id:", k.ID)
				fmt.Println("API key (store it now, it is not shown again):", rawKey)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				return printJSONOrDump(items)
			})
		},
	}
}

func apikeyDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteAPIKey(ctx, id); err != nil {
					return err
				}
				fmt.Println("Deleted", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: wizard steps, goal versions, research transitions, syncs, invitations.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, tenantID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, tenantID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrDump(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveTenantAndConfig(cmd.Context(), viper.GetString("tenant"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg, backendFromConfig(cfg))
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("NORTHSTAR_JWT_SECRET"),
				AllowLegacyActorHeader: allowActorHeader,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("NORTHSTAR_JWT_SECRET is required for bearer auth (or pass --allow-actor-header for local use)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Northstar API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept the X-Actor-Id header without auth (local only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	tenantID, cfg, err := app.ResolveTenantAndConfig(ctx, viper.GetString("tenant"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, backendFromConfig(cfg))
	return fn(ctx, e, tenantID)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func backendFromConfig(cfg *config.Config) backend.Service {
	if cfg == nil || cfg.Backend.BaseURL == "" {
		return nil
	}
	c := backend.New(cfg.Backend.BaseURL)
	c.APIKey = os.Getenv("NORTHSTAR_BACKEND_TOKEN")
	return c
}

func printJSONOrDump(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
