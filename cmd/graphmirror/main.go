package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/johnwards/graphmirror/internal/config"
	"github.com/johnwards/graphmirror/internal/database"
	"github.com/johnwards/graphmirror/internal/mirror"
	"github.com/johnwards/graphmirror/internal/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "graphmirror",
		Short: "Maintain a local SQLite mirror of a remote GraphQL object graph",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "register TYPENAME ID",
			Short: "Bootstrap the store and register a root object",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runRegister(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "outdated",
			Short: "List objects and connections that are stale as of now",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOutdated(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Run refresh rounds against the remote until nothing is stale",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSync(cmd.Context())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("db", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("endpoint", defaults.GetString("graphql.endpoint"), "GraphQL endpoint URL")
	cmd.PersistentFlags().String("token", "", "Bearer token for the remote (overrides env)")
	cmd.PersistentFlags().String("schema", "", "Path to a schema JSON file (default: built-in GitHub schema)")
	cmd.PersistentFlags().Int("page-size", defaults.GetInt("graphql.page_size"), "Connection page size (1-100)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "database.path", "db")
	bindFlag(cmd, "graphql.endpoint", "endpoint")
	bindFlag(cmd, "graphql.token", "token")
	bindFlag(cmd, "schema.path", "schema")
	bindFlag(cmd, "graphql.page_size", "page-size")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func setupLogger(level string) {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// openMirror loads configuration, opens the database, and bootstraps the
// mirror. The returned cleanup closes the database.
func openMirror(ctx context.Context) (*mirror.Mirror, *schema.Schema, config.Config, func(), error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, config.Config{}, nil, err
	}
	setupLogger(cfg.LogLevel)

	sch, err := loadSchema(cfg)
	if err != nil {
		return nil, nil, config.Config{}, nil, err
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, config.Config{}, nil, fmt.Errorf("open database: %w", err)
	}

	m, err := mirror.New(ctx, db, sch)
	if err != nil {
		_ = db.Close()
		return nil, nil, config.Config{}, nil, fmt.Errorf("initialize mirror: %w", err)
	}

	return m, sch, cfg, func() { _ = db.Close() }, nil
}

func runRegister(ctx context.Context, typename, id string) error {
	m, _, _, cleanup, err := openMirror(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.RegisterObject(ctx, typename, id); err != nil {
		return err
	}
	slog.Info("registered object", "typename", typename, "id", id)
	return nil
}

func runOutdated(ctx context.Context) error {
	m, _, _, cleanup, err := openMirror(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := m.FindOutdated(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, obj := range out.Objects {
		fmt.Printf("object %s %s\n", obj.Typename, obj.ID)
	}
	for _, conn := range out.Connections {
		cursor := "(never fetched)"
		if conn.EndCursor != nil {
			if conn.EndCursor.Value != nil {
				cursor = *conn.EndCursor.Value
			} else {
				cursor = "(null)"
			}
		}
		fmt.Printf("connection %s %s.%s cursor=%s\n", conn.Typename, conn.ObjectID, conn.Fieldname, cursor)
	}
	return nil
}
