package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shiftpost/internal/config"
	"shiftpost/internal/db"
	"shiftpost/internal/domain"
	"shiftpost/internal/engine"
	"shiftpost/internal/migrate"
	"shiftpost/internal/pay"
	"shiftpost/internal/repo"
	"shiftpost/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sp",
	Short: "Shiftpost CLI",
	Long: `Shiftpost runs a security deployment marketplace.
Agencies post guard shifts, officers commit to them, and both sides review
each other once the work is done.
- Workspace: the .shiftpost directory holding the database; rates and
  review vocabularies live in shiftpost.yml next to it.
- Jobs: shifts flow Open -> Pending -> Booked -> Completed. An officer
  commits, the agency accepts, the agency marks it complete.
- Cancel window: a committed officer may back out only after the
  confirmation window (default 30 minutes) has passed.
- Pay: each rank has an hourly rate; Rush shifts carry a premium. Offers
  below the non-rush floor are rejected.
- Accounts: registrations are pending until an admin validates them.
- Event log: diary of changes, view with 'sp log tail'.`,
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
	_ = godotenv.Load()
	viper.SetEnvPrefix("SHIFTPOST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default shiftpost.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show marketplace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobCounts, err := e.Repo.CountJobsByStatus(ctx)
				if err != nil {
					return err
				}
				accountCounts, err := e.Repo.CountAccounts(ctx)
				if err != nil {
					return err
				}
				out := map[string]any{
					"job_counts":     jobCounts,
					"account_counts": accountCounts,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Println("Jobs:")
				for _, status := range []string{domain.StatusOpen, domain.StatusPending, domain.StatusBooked, domain.StatusCompleted} {
					fmt.Printf("  %s: %d\n", status, jobCounts[status])
				}
				fmt.Println("Accounts:")
				for kind, byStatus := range accountCounts {
					for status, n := range byStatus {
						fmt.Printf("  %s/%s: %d\n", kind, status, n)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
		Long:  "Jobs are guard shifts. They flow Open -> Pending -> Booked -> Completed; a pending commitment can revert to Open after the cancel window.",
	}
	job.AddCommand(jobPostCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobCommitCmd())
	job.AddCommand(jobCancelCmd())
	job.AddCommand(jobAcceptCmd())
	job.AddCommand(jobCompleteCmd())
	job.AddCommand(jobReviewCmd())
	job.AddCommand(jobDeleteCmd())
	job.AddCommand(jobResetCmd())
	return job
}

func jobPostCmd() *cobra.Command {
	var opts engine.JobCreateOptions
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.CreateJob(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Site, "site", "", "site name")
	cmd.Flags().StringVar(&opts.SiteType, "site-type", "", "site type (default Commercial)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "shift date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Rank, "rank", "", "officer rank (SO, SSO, SS, SSS, CSO)")
	cmd.Flags().StringVar(&opts.StartTime, "start", "", "start time (HH:MM)")
	cmd.Flags().StringVar(&opts.EndTime, "end", "", "end time (HH:MM)")
	cmd.Flags().StringVar(&opts.Urgency, "urgency", domain.UrgencyNormal, "Normal or Rush")
	cmd.Flags().Float64Var(&opts.OfferPay, "offer", 0, "offered pay for the whole shift")
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("rank")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("offer")
	return cmd
}

func jobListCmd() *cobra.Command {
	var f repo.JobFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobs, err := e.Repo.ListJobs(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Site", "Date", "Rank", "Shift", "Urgency", "Offer", "Status", "Officer"})
				for _, j := range jobs {
					officer := ""
					if j.CommittedBy != nil {
						officer = *j.CommittedBy
					}
					tw.AppendRow(table.Row{
						j.ID, j.Site, j.Date, j.Rank,
						j.StartTime + "-" + j.EndTime, j.Urgency,
						fmt.Sprintf("$%.2f", j.OfferPay), j.Status, officer,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (Open, Pending, Booked, Completed)")
	cmd.Flags().StringVar(&f.Rank, "rank", "", "rank filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows (0 = all)")
	return cmd
}

func jobShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.Repo.GetJob(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func jobTransitionCmd(use, short string, fn func(engine.Engine, context.Context, int64, string) (domain.Job, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := fn(e, ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
}

func jobCommitCmd() *cobra.Command {
	return jobTransitionCmd("commit", "Commit to an open job", func(e engine.Engine, ctx context.Context, id int64, actor string) (domain.Job, error) {
		return e.Commit(ctx, id, actor)
	})
}

func jobCancelCmd() *cobra.Command {
	return jobTransitionCmd("cancel", "Cancel a pending commitment", func(e engine.Engine, ctx context.Context, id int64, actor string) (domain.Job, error) {
		return e.Cancel(ctx, id, actor)
	})
}

func jobAcceptCmd() *cobra.Command {
	return jobTransitionCmd("accept", "Accept the committed officer", func(e engine.Engine, ctx context.Context, id int64, actor string) (domain.Job, error) {
		return e.Accept(ctx, id, actor)
	})
}

func jobCompleteCmd() *cobra.Command {
	return jobTransitionCmd("complete", "Mark a booked job done", func(e engine.Engine, ctx context.Context, id int64, actor string) (domain.Job, error) {
		return e.Complete(ctx, id, actor)
	})
}

func jobReviewCmd() *cobra.Command {
	var side, comments string
	var rating int
	var traits []string
	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Submit a post-completion review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.SubmitReview(ctx, id, side, engine.ReviewOptions{
					Rating:   rating,
					Traits:   traits,
					Comments: comments,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&side, "side", "", "agency or officer")
	cmd.Flags().IntVar(&rating, "rating", 0, "rating 1-5")
	cmd.Flags().StringArrayVar(&traits, "trait", []string{}, "trait tag (repeatable)")
	cmd.Flags().StringVar(&comments, "comments", "", "free-form comments")
	_ = cmd.MarkFlagRequired("side")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func jobDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteJob(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func jobResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove all jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to remove all jobs without --yes")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				removed, err := e.ResetJobs(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d jobs\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm removal")
	return cmd
}

func accountCmd() *cobra.Command {
	acc := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
		Long:  "Agency and officer registrations start pending; an admin validates or rejects them.",
	}
	acc.AddCommand(accountRegisterCmd())
	acc.AddCommand(accountListCmd())
	acc.AddCommand(accountValidateCmd())
	acc.AddCommand(accountRejectCmd())
	return acc
}

func accountRegisterCmd() *cobra.Command {
	var opts engine.AccountCreateOptions
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agency or officer",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RegisterAccount(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "agency or officer")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Contact, "contact", "", "contact (email or phone)")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func accountListCmd() *cobra.Command {
	var f repo.AccountFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				accounts, err := e.Repo.ListAccounts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(accounts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Name", "Contact", "Status"})
				for _, a := range accounts {
					tw.AppendRow(table.Row{a.ID, a.Kind, a.Name, a.Contact, a.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Kind, "kind", "", "agency or officer")
	cmd.Flags().StringVar(&f.Status, "status", "", "pending or verified")
	return cmd
}

func accountValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <id>",
		Short: "Approve a pending registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ValidateAccount(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func accountRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RejectAccount(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func payCmd() *cobra.Command {
	p := &cobra.Command{Use: "pay", Short: "Pay rates and quotes"}
	p.AddCommand(payRatesCmd())
	p.AddCommand(payQuoteCmd())
	return p
}

func payRatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Show the rank rate table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			t := cfg.Table()
			if viper.GetBool("json") {
				return printJSON(t.Rates)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Rank", "Rate/hour"})
			for _, rank := range t.Ranks() {
				rate, _ := t.Rate(rank)
				tw.AppendRow(table.Row{rank, fmt.Sprintf("$%.2f", rate)})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func payQuoteCmd() *cobra.Command {
	var rank, start, end, urgency string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote suggested pay for a shift",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			t := cfg.Table()
			hours, err := pay.Hours(start, end)
			if err != nil {
				return err
			}
			suggested, err := t.Suggested(rank, start, end, urgency)
			if err != nil {
				return err
			}
			minimum, err := t.MinimumOffer(rank, start, end, urgency)
			if err != nil {
				return err
			}
			return printJSONOrTable(map[string]any{
				"rank":          rank,
				"hours":         hours,
				"urgency":       urgency,
				"suggested_pay": suggested,
				"minimum_offer": minimum,
			})
		},
	}
	cmd.Flags().StringVar(&rank, "rank", "", "officer rank")
	cmd.Flags().StringVar(&start, "start", "", "start time (HH:MM)")
	cmd.Flags().StringVar(&end, "end", "", "end time (HH:MM)")
	cmd.Flags().StringVar(&urgency, "urgency", domain.UrgencyNormal, "Normal or Rush")
	_ = cmd.MarkFlagRequired("rank")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: job transitions, reviews, registrations.",
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
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind (job, account)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
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
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("SHIFTPOST_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				fmt.Println("SHIFTPOST_JWT_SECRET not set; running in dev mode (X-Actor-Id / X-Role headers trusted)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Shiftpost API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
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

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}
