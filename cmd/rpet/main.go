package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"routinepet/internal/app"
	"routinepet/internal/config"
	"routinepet/internal/db"
	"routinepet/internal/domain"
	"routinepet/internal/engine"
	"routinepet/internal/events"
	"routinepet/internal/failure"
	"routinepet/internal/logging"
	"routinepet/internal/migrate"
	"routinepet/internal/repo"
	"routinepet/internal/server"
)

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "rpet",
	Short: "routinepet CLI",
	Long: `routinepet turns daily routines into a pet that grows.
- Missions: small routines worth EXP. Daily missions can be done once per day,
  one-time and event missions a limited number of times inside their window.
- Pet: every player owns one pet; its total EXP decides its stage.
- Stages: the catalog of thresholds (Egg, Chick, Hen, ...) a pet climbs.
- Reset: wipes the completion history and puts the pet back on the first stage.
- Event log: every completion and reset, view with 'rpet log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log, err := logging.New(logging.Config{
			Level:  viper.GetString("log-level"),
			File:   viper.GetString("log-file"),
			Stderr: true,
		})
		if err != nil {
			return err
		}
		logger = log
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describeError(err))
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ROUTINEPET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "player id (defaults to the actor in routinepet.yml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this rolling file")
	for _, name := range []string{"workspace", "json", "actor-id", "log-level", "log-file"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func dashboardCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the pet and the missions available on a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				day := date
				if day == "" {
					day = e.Today()
				}
				snap, err := e.Snapshot(ctx, actorID, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				printSnapshot(snap)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to show (YYYY-MM-DD), defaults to today")
	return cmd
}

func missionCmd() *cobra.Command {
	m := &cobra.Command{Use: "mission", Short: "List and complete missions"}
	m.AddCommand(missionListCmd())
	m.AddCommand(missionCompleteCmd())
	return m
}

func missionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the mission catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				items, err := e.Repo.ListMissions(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Period", "EXP", "Max", "Window", "Active"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Title, m.Type, m.Period, m.RewardExp, m.MaxCompletions, m.ActiveFrom + ".." + m.ActiveTo, m.IsActive})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func missionCompleteCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "complete <mission-id>",
		Short: "Complete a mission and award its EXP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				day := date
				if day == "" {
					day = e.Today()
				}
				res, err := e.CompleteMission(ctx, actorID, args[0], day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("+%d EXP for %s (total %d)\n", res.EarnedExp, res.MissionID, res.TotalExp)
				if res.StageChanged {
					fmt.Printf("Your pet evolved: stage %d -> %d\n", res.OldStageID, res.NewStageID)
				}
				if res.NextStageThreshold != nil {
					fmt.Printf("Next stage at %d EXP\n", *res.NextStageThreshold)
				} else {
					fmt.Println("Final stage reached")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "completion day (YYYY-MM-DD), defaults to today")
	return cmd
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear completion history and return the pet to its first stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				snap, err := e.ResetMissions(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				printSnapshot(snap)
				return nil
			})
		},
	}
}

func stageCmd() *cobra.Command {
	s := &cobra.Command{Use: "stage", Short: "Inspect the stage catalog"}
	s.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stages, lowest threshold first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				items, err := e.Repo.ListStages(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Min EXP", "Animation"})
				for _, st := range items {
					tw.AppendRow(table.Row{st.ID, st.Name, st.MinTotalExp, st.AnimationKey})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	})
	return s
}

func seedCmd() *cobra.Command {
	var file string
	var initFile bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import stages and missions and create the player's pet",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if initFile {
				path := config.Path(workspace)
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists", path)
				}
				actor := viper.GetString("actor-id")
				if actor == "" {
					actor = "demo-user"
				}
				if err := os.WriteFile(path, []byte(config.GenerateDefault(actor)), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", path)
			}
			var (
				cfg *config.Config
				err error
			)
			if file != "" {
				cfg, err = config.FromFile(file)
			} else {
				cfg, err = app.ResolveConfig(workspace, "")
			}
			if err != nil {
				return err
			}
			if actor := viper.GetString("actor-id"); actor != "" {
				cfg.Actor.ID = actor
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				res, err := app.Seed(ctx, r, events.Writer{Now: time.Now}, cfg, time.Now())
				if err != nil {
					return err
				}
				logger.Info("catalog seeded", zap.String("actor_id", res.ActorID), zap.Int("stages", res.Stages), zap.Int("missions", res.Missions), zap.Int("restaged", res.Restaged))
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Seeded %d stages and %d missions for %s", res.Stages, res.Missions, res.ActorID)
				if res.PetCreated {
					fmt.Print(" (new pet)")
				}
				if res.Restaged > 0 {
					fmt.Printf(", %d pet(s) moved to a new stage", res.Restaged)
				}
				fmt.Println()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML (defaults to routinepet.yml in the workspace, then the built-in catalog)")
	cmd.Flags().BoolVar(&initFile, "init", false, "write a starter routinepet.yml first")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var limit int
	var all bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				if all {
					actorID = ""
				}
				items, err := e.Repo.LatestEvents(ctx, actorID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	cmd.Flags().BoolVar(&all, "all", false, "include every player's events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowHeader bool
	var rateLimit int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			actorID, err := resolveActor(workspace)
			if err != nil {
				return err
			}
			conn, err := app.Open(cmd.Context(), workspace, actorID, logger)
			if err != nil {
				return err
			}
			defer conn.Close()
			e := engine.New(conn, logger)
			authCfg := server.AuthConfig{
				JWTSecret:        viper.GetString("jwt-secret"),
				AllowActorHeader: allowHeader,
				DefaultActorID:   actorID,
			}
			handler, err := server.New(server.Config{
				Engine:             e,
				BasePath:           basePath,
				Auth:               authCfg,
				Log:                logger,
				RateLimitPerMinute: rateLimit,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath), zap.String("default_actor", actorID))
			fmt.Printf("Serving routinepet API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowHeader, "allow-actor-header", false, "trust X-Actor-Id on unauthenticated requests")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 60, "writes per minute per player, 0 disables")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (env ROUTINEPET_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

// resolveActor picks the player: --actor-id / ROUTINEPET_ACTOR_ID, then the
// actor named in routinepet.yml, then the built-in demo player.
func resolveActor(workspace string) (string, error) {
	if id := strings.TrimSpace(viper.GetString("actor-id")); id != "" {
		return id, nil
	}
	cfg, err := app.ResolveConfig(workspace, "")
	if err != nil {
		return "", err
	}
	return cfg.Actor.ID, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	actorID, err := resolveActor(workspace)
	if err != nil {
		return err
	}
	conn, err := app.Open(ctx, workspace, actorID, logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	e := engine.New(conn, logger)
	e.Location = time.Local
	return fn(ctx, e, actorID)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printSnapshot(s domain.RoutineSnapshot) {
	if s.Pet == nil {
		fmt.Printf("%s: no pet yet, run 'rpet seed'\n", s.Date)
	} else {
		next := "final stage"
		if s.Pet.NextStageMin != nil {
			next = fmt.Sprintf("%d EXP to %d", *s.Pet.NextStageMin-s.Pet.TotalExp, *s.Pet.NextStageMin)
		}
		fmt.Printf("%s: %s with %d EXP (%s)\n", s.Date, s.Pet.StageName, s.Pet.TotalExp, next)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Mission", "Title", "EXP", "Period", "Today", "Done", "Left"})
	for _, m := range s.Missions {
		today := ""
		if m.CompletedToday {
			today = "done"
		}
		tw.AppendRow(table.Row{m.ID, m.Title, m.RewardExp, m.Period, today, m.CompletedCount, m.RemainingCount})
	}
	fmt.Println(tw.Render())
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError prefers the player-facing message for engine failures.
func describeError(err error) string {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return fmt.Sprintf("%s (%s)", fe.Message(), fe.Reason)
	}
	return err.Error()
}
