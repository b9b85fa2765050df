package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issueboard/internal/auth"
	"github.com/joescharf/issueboard/internal/lifecycle"
	"github.com/joescharf/issueboard/internal/logger"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/output"
	"github.com/joescharf/issueboard/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	session   *auth.Session
	appLog    *slog.Logger

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "issueboard",
	Short: "Issue tracker with duplicate detection",
	Long: `issueboard tracks issues for a team. New issues are checked against
existing ones by title and description overlap, and likely duplicates
are shown before anything is created.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if dataStore != nil {
		_ = dataStore.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", friendlyError(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/issueboard/config.yaml)")
}

func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "issueboard.db"))
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.token_ttl", "720h")
	viper.SetDefault("duplicates.threshold", 0.5)
	viper.SetDefault("duplicates.max_shown", 3)
	viper.SetDefault("timeouts.request", "0s")
	viper.SetDefault("port", 8080)
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ISSUEBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	appLog = logger.Init(logger.Options{
		Level:  level,
		Format: viper.GetString("log.format"),
	})

	// Store and session open lazily so config/version work without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// jwtSecret returns the configured signing secret, or a random one kept in
// the state dir so sessions survive restarts.
func jwtSecret() (string, error) {
	if secret := viper.GetString("auth.jwt_secret"); secret != "" {
		return secret, nil
	}

	path := filepath.Join(viper.GetString("state_dir"), "jwt.secret")
	data, err := os.ReadFile(path)
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		return strings.TrimSpace(string(data)), nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read jwt secret: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write jwt secret: %w", err)
	}
	return secret, nil
}

// getAuthenticator builds the account service over the shared store.
func getAuthenticator() (*auth.Authenticator, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	secret, err := jwtSecret()
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(s, auth.NewTokens(secret, viper.GetDuration("auth.token_ttl"))), nil
}

// getSession returns the CLI session, loading it on first call.
func getSession() (*auth.Session, error) {
	if session != nil {
		return session, nil
	}
	a, err := getAuthenticator()
	if err != nil {
		return nil, err
	}
	sess, err := auth.OpenSession(a, viper.GetString("state_dir"))
	if err != nil {
		return nil, err
	}
	sess.OnChange(func(u *models.User) {
		if u == nil {
			appLog.Debug("session signed out")
			return
		}
		appLog.Debug("session signed in", "uid", u.UID)
	})
	session = sess
	return session, nil
}

// getService builds the issue workflow service from config.
func getService() (*lifecycle.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return lifecycle.NewService(s, lifecycle.Options{
		Threshold: viper.GetFloat64("duplicates.threshold"),
		Timeout:   viper.GetDuration("timeouts.request"),
		Sink:      lifecycle.NewSlogSink(appLog),
	}), nil
}

// friendlyError turns workflow errors into the message shown to the user.
func friendlyError(err error) string {
	kind, msg := lifecycle.Describe(err)
	if kind == lifecycle.KindInternal {
		return err.Error()
	}
	return msg
}
