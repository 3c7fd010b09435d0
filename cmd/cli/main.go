package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/cmd/cli/commands"
	"github.com/voreskerne/frivillig/internal/config"
	"github.com/voreskerne/frivillig/pkg/db"
	"github.com/voreskerne/frivillig/pkg/postgres"
	"github.com/voreskerne/frivillig/pkg/sqlite"
	"github.com/voreskerne/frivillig/pkg/utils/logging"
)

var env string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &commands.AppContext{Ctx: ctx}

	rootCmd := &cobra.Command{
		Use:          "frivillig",
		Short:        "Frivillig - volunteer shifts, trades and task points",
		Long:         `Runs the volunteer shift API and the admin tooling around it: migrations, users, roles, recurring shifts and task completion.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(app)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.Database != nil {
				app.Database.Close()
			}
			if app.Logger != nil {
				app.Logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: dev, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")

	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.MigrateCmd(app))
	rootCmd.AddCommand(commands.CreateUserCmd(app))
	rootCmd.AddCommand(commands.SeedRolesCmd(app))
	rootCmd.AddCommand(commands.SeedShiftsCmd(app))
	rootCmd.AddCommand(commands.CompleteTaskCmd(app))
	rootCmd.AddCommand(commands.ListShiftsCmd(app))
	rootCmd.AddCommand(commands.AuthorizeMailCmd(app))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// initApp sets up config, logger and database
func initApp(app *commands.AppContext) error {
	var err error
	app.Env = env

	app.Cfg, err = config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app.Logger, err = logging.InitLogger(env, logging.Options{FileEnabled: app.Cfg.Logging.FileSink()})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Info("Starting application", zap.String("environment", env))

	app.Logger.Info("Connecting to database", zap.String("driver", app.Cfg.Database.Driver))
	app.Database, err = openDatabase(app.Ctx, app.Cfg.Database)
	if err != nil {
		return err
	}
	app.Logger.Debug("Database connected")

	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (db.Database, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.NewDB(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return store, nil
	default:
		path := cfg.SQLitePath
		if path == "" {
			path = fmt.Sprintf("data/frivillig_%s.db", env)
		}
		store, err := sqlite.NewDB(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return store, nil
	}
}
