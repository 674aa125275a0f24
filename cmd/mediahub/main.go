package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/mediahub/bot"
	"github.com/hrygo/mediahub/cache"
	"github.com/hrygo/mediahub/internal/profile"
	"github.com/hrygo/mediahub/internal/version"
	"github.com/hrygo/mediahub/store"
	"github.com/hrygo/mediahub/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "mediahub",
	Short: `A Telegram bot that redistributes messages between registered chats: dedup, albums, reply threading, rate limiting and subscriptions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Only load .env for direct binary execution; a systemd unit carries
		// its own environment.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDB(instanceProfile)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			return
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return
		}

		fastStore, err := cache.NewBadger(fastStoreDir(instanceProfile))
		if err != nil {
			slog.Error("failed to open fast store", "error", err)
			return
		}

		hub, err := bot.New(instanceProfile, storeInstance, fastStore)
		if err != nil {
			slog.Error("failed to start bot", "error", err)
			return
		}

		httpServer := newHTTPServer(instanceProfile, storeInstance, hub)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()

		printGreetings(instanceProfile)

		c := make(chan os.Signal, 1)
		// SIGTERM is what most process managers send for a graceful stop.
		signal.Notify(c, terminationSignals...)
		go func() {
			<-c
			slog.Info("shutdown signal received")
			cancel()
		}()

		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("bot stopped with error", "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = fastStore.Close()
		_ = storeInstance.Close()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of bot, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "bind address of the metrics endpoint")
	rootCmd.PersistentFlags().Int("port", 28090, "bind port of the metrics endpoint")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("mediahub")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// fastStoreDir returns where Badger keeps its files; demo mode runs fully
// in memory.
func fastStoreDir(p *profile.Profile) string {
	if p.Mode == "demo" {
		return ""
	}
	return filepath.Join(p.Data, "faststore")
}

func newHTTPServer(p *profile.Profile, s *store.Store, hub *bot.Bot) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", hub.Metrics().Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := s.Ping(); err != nil {
			http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", p.Addr, p.Port),
		Handler: mux,
	}
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("MediaHub %s started successfully!\n", p.Version)
	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Metrics and health on http://localhost:%d\n", p.Port)
	if p.IsDev() && p.DSN != "" {
		fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
