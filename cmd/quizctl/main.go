package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/candidatequiz/internal/config"
)

// v carries the same keys as the deployed functions; flags override the
// environment. Unlike the functions, the CLI defaults to local backends.
var v = newViper()

func newViper() *viper.Viper {
	v := config.New()
	v.SetDefault("STORE_BACKEND", config.BackendSQLite)
	v.SetDefault("LOCK_BACKEND", config.LockFile)
	return v
}

var rootCmd = &cobra.Command{
	Use:   "quizctl",
	Short: "Operate the candidate questionnaire cache",
	Long: `quizctl inspects and maintains the candidate questionnaire cache.
It reads the same environment variables as the cloud functions (STORE_BACKEND,
LOCK_BACKEND, PROJECT_ID, ...); flags override them.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if v.GetBool("verbose") {
			level = slog.LevelInfo
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func main() {
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.String("store", config.BackendSQLite, "store backend: firestore, sqlite or memory")
	flags.String("sqlite-path", "candidatequiz.db", "sqlite database file")
	flags.String("lock", config.LockFile, "lock backend: gcs or file")
	flags.String("lock-dir", ".locks", "directory of file locks")
	flags.String("lock-bucket", "", "bucket of gcs locks")
	flags.String("project", "", "Google Cloud project; enables generation")
	flags.Bool("json", false, "output JSON")
	flags.BoolP("verbose", "v", false, "log progress to stderr")
	bind(v, flags.Lookup("store"), "STORE_BACKEND")
	bind(v, flags.Lookup("sqlite-path"), "SQLITE_PATH")
	bind(v, flags.Lookup("lock"), "LOCK_BACKEND")
	bind(v, flags.Lookup("lock-dir"), "LOCK_DIR")
	bind(v, flags.Lookup("lock-bucket"), "LOCK_BUCKET")
	bind(v, flags.Lookup("project"), "PROJECT_ID")
	bind(v, flags.Lookup("json"), "json")
	bind(v, flags.Lookup("verbose"), "verbose")
}

func registerCommands() {
	rootCmd.AddCommand(questionsCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(typesCmd())
}
