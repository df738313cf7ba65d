package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kosuda/dakoku/internal/sheets"
	"github.com/kosuda/dakoku/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "dakoku",
	Short: "Attendance punch kiosk service",
	Long: `dakoku runs the attendance punch kiosk backend.

Punches are stored in a local SQLite database and mirrored to a Google
spreadsheet in the background, one sheet tab per department, one row per
employee, one column per day of month. The spreadsheet is best-effort;
the local database is the source of truth.`,
	SilenceUsage: true,
}

var cfgFile string

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./dakoku.yaml)")
	rootCmd.PersistentFlags().String("db", "", "database file path")
	_ = viper.BindPFlag("db.path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(punchCmd)
	rootCmd.AddCommand(employeeCmd)
	rootCmd.AddCommand(sheetsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(statsCmd)
}

func initConfig() {
	viper.SetDefault("db.path", "dakoku.db")
	viper.SetDefault("server.addr", ":8737")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size_mb", 10)
	viper.SetDefault("log.max_backups", 3)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dakoku")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.dakoku")
	}

	viper.SetEnvPrefix("DAKOKU")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config: %s\n", viper.ConfigFileUsed())
	}
}

// logWriter returns stderr, teed into a rotating log file when configured.
func logWriter() io.Writer {
	file := viper.GetString("log.file")
	if file == "" {
		return os.Stderr
	}
	return io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   file,
		MaxSize:    viper.GetInt("log.max_size_mb"),
		MaxBackups: viper.GetInt("log.max_backups"),
	})
}

func newLogger(prefix string) *log.Logger {
	return log.New(logWriter(), prefix, log.LstdFlags)
}

// openStore opens the database, ensures the schema exists and runs the
// scheduled retention check. Every command initializes through here, so the
// day-10 cleanup gets its chance no matter which entry point ran first.
func openStore(ctx context.Context) (*store.Store, error) {
	return openStoreAt(ctx, time.Now())
}

func openStoreAt(ctx context.Context, now time.Time) (*store.Store, error) {
	st, err := store.Open(viper.GetString("db.path"), newLogger("[store] "))
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	// Retention is opportunistic; a failure never blocks the command.
	if err := st.MaybeMonthlyCleanup(ctx, now); err != nil {
		fmt.Fprintf(os.Stderr, "Retention cleanup failed: %v\n", err)
	}
	return st, nil
}

// sheetsFromSettings builds a spreadsheet client from the saved credential
// pair. Returns (nil, nil) when no credential is configured.
func sheetsFromSettings(ctx context.Context, st *store.Store) (*sheets.Client, error) {
	key, _, err := st.Setting(ctx, store.SettingServiceAccountKey)
	if err != nil {
		return nil, err
	}
	id, _, err := st.Setting(ctx, store.SettingSpreadsheetID)
	if err != nil {
		return nil, err
	}
	if key == "" || id == "" {
		return nil, nil
	}

	return sheets.New(sheets.Config{
		ServiceAccountKey: key,
		SpreadsheetID:     id,
	}, newLogger("[sheets] "))
}

// cmdContext returns a context bounded for one-shot CLI operations.
func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}
