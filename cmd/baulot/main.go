package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"baulot/internal/app"
	"baulot/internal/config"
	"baulot/internal/db"
	"baulot/internal/domain"
	"baulot/internal/engine"
	"baulot/internal/migrate"
	"baulot/internal/progress"
	"baulot/internal/repo"
	"baulot/internal/server"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "baulot",
	Short: "BauLot construction project tracker",
	Long: `BauLot tracks construction projects for architects, contractors and clients.
A project is split into trades (Elektro, Sanitär, ...) assigned to contractors;
each trade carries tasks whose statuses roll up into progress per trade and
per project. Each role only sees the part of a project it is entitled to.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BAULOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "baulot.yml", "config file")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(tokenCmd())
}

// loadConfig reads the config file and applies flag and BAULOT_* overrides.
// Secrets are only ever taken from the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("db"); v != "" {
		cfg.Database.Path = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	cfg.Auth.JWTSecret = viper.GetString("jwt-secret")
	cfg.Storage.AccessKey = viper.GetString("s3-access-key")
	cfg.Storage.SecretKey = viper.GetString("s3-secret-key")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, app.NewLogger(os.Stderr, cfg.Log.Level))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Path: cfg.Database.Path})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			v, err := migrate.Version(cmd.Context(), conn)
			if err != nil {
				return err
			}
			fmt.Printf("database %s at version %d\n", cfg.Database.Path, v)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	c.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault())
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config (secrets omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
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
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return c
}

func userCmd() *cobra.Command {
	c := &cobra.Command{Use: "user", Short: "Manage user accounts"}
	c.AddCommand(userCreateCmd())
	c.AddCommand(userListCmd())
	return c
}

func userCreateCmd() *cobra.Command {
	var email, name, role, password string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (password read from stdin when --password is empty)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || role == "" {
				return errors.New("--email and --role required")
			}
			if password == "" {
				fmt.Fprint(os.Stderr, "password: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.CreateUser(ctx, engine.NewUser{
					Email:    email,
					Name:     name,
					Role:     domain.Role(role),
					Password: password,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("created %s %s (%s)\n", u.Role, u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "architect, contractor or client")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.ListUsers(ctx, domain.Role(role))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Name", "Role"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, u.Name, u.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func projectCmd() *cobra.Command {
	c := &cobra.Command{Use: "project", Short: "Inspect projects"}
	c.AddCommand(projectListCmd())
	c.AddCommand(projectProgressCmd())
	c.AddCommand(projectEventsCmd())
	return c
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Start", "Target end", "Architect", "Tasks done"})
				for _, p := range items {
					counts, err := a.Engine.Repo.CountTasksByStatus(ctx, p.ID)
					if err != nil {
						return err
					}
					total := 0
					for _, n := range counts {
						total += n
					}
					done := fmt.Sprintf("%d/%d", counts[domain.StatusDone], total)
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.StartDate, p.TargetEndDate, deref(p.ArchitectID), done})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <project-id>",
		Short: "Show progress across all trades of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.Repo.LoadProject(ctx, args[0])
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("project %s not found", args[0])
					}
					return err
				}
				sum := progress.Aggregate(p)
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle(p.Name)
				tw.AppendHeader(table.Row{"Trade", "Total", "Done", "In progress", "Blocked", "Open", "%"})
				for _, tr := range sum.Trades {
					tw.AppendRow(table.Row{tr.TradeName, tr.Total, tr.Done, tr.InProgress, tr.Blocked, tr.Open, tr.Percentage})
				}
				tw.AppendFooter(table.Row{"Total", "", "", "", sum.BlockedCount, "", sum.TotalPercentage})
				tw.Render()
				return nil
			})
		},
	}
}

func projectEventsCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "events <project-id>",
		Short: "Tail the audit log of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, repo.EventFilters{ProjectID: args[0], Type: evtType, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func tokenCmd() *cobra.Command {
	var email string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for a user (needs BAULOT_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Config.Auth.JWTSecret == "" {
					return errors.New("BAULOT_JWT_SECRET is required to sign tokens")
				}
				u, err := a.Engine.Repo.GetUserByEmail(ctx, email)
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("no user with email %s", email)
					}
					return err
				}
				authCfg := server.AuthConfig{
					JWTSecret: a.Config.Auth.JWTSecret,
					Issuer:    a.Config.Auth.Issuer,
					TokenTTL:  a.Config.Auth.TokenTTL.Std(),
				}
				if ttl > 0 {
					authCfg.TokenTTL = ttl
				}
				token, exp, err := server.SignToken(authCfg, u, time.Now())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": token, "expires_at": exp.UTC().Format(time.RFC3339)})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}

// --- helpers ---

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
