package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "issueboard"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage issueboard configuration.

Running bare 'issueboard config' is the same as 'issueboard config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# issueboard configuration
# See: issueboard config show (for effective values and sources)

# State directory for the session and server files (default: ~/.config/issueboard)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/issueboard/issueboard.db)
# db_path: {{ .DBPath }}

auth:
  # Secret used to sign session tokens. Empty means a random secret kept
  # in the state dir.
  jwt_secret: ""
  # How long a sign-in stays valid
  token_ttl: "{{ .TokenTTL }}"

duplicates:
  # Minimum similarity (0-1) for an existing issue to count as a likely duplicate
  threshold: {{ .Threshold }}
  # How many likely duplicates to show
  max_shown: {{ .MaxShown }}

timeouts:
  # Upper bound for each database call; 0s means no limit
  request: "{{ .RequestTimeout }}"

# API server port for 'issueboard serve'
port: {{ .Port }}

log:
  # debug, info, warn, error
  level: "{{ .LogLevel }}"
  # text or json
  format: "{{ .LogFormat }}"

anthropic:
  # Used by 'issueboard issue check --review'; ANTHROPIC_API_KEY also works
  api_key: ""
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	TokenTTL       string
	Threshold      float64
	MaxShown       int
	RequestTimeout string
	Port           int
	LogLevel       string
	LogFormat      string
	AnthropicModel string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		TokenTTL:       viper.GetDuration("auth.token_ttl").String(),
		Threshold:      viper.GetFloat64("duplicates.threshold"),
		MaxShown:       viper.GetInt("duplicates.max_shown"),
		RequestTimeout: viper.GetDuration("timeouts.request").String(),
		Port:           viper.GetInt("port"),
		LogLevel:       viper.GetString("log.level"),
		LogFormat:      viper.GetString("log.format"),
		AnthropicModel: viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "ISSUEBOARD_STATE_DIR"},
	{Key: "db_path", EnvVar: "ISSUEBOARD_DB_PATH"},
	{Key: "auth.jwt_secret", EnvVar: "ISSUEBOARD_AUTH_JWT_SECRET", Secret: true},
	{Key: "auth.token_ttl", EnvVar: "ISSUEBOARD_AUTH_TOKEN_TTL"},
	{Key: "duplicates.threshold", EnvVar: "ISSUEBOARD_DUPLICATES_THRESHOLD"},
	{Key: "duplicates.max_shown", EnvVar: "ISSUEBOARD_DUPLICATES_MAX_SHOWN"},
	{Key: "timeouts.request", EnvVar: "ISSUEBOARD_TIMEOUTS_REQUEST"},
	{Key: "port", EnvVar: "ISSUEBOARD_PORT"},
	{Key: "log.level", EnvVar: "ISSUEBOARD_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "ISSUEBOARD_LOG_FORMAT"},
	{Key: "anthropic.api_key", EnvVar: "ISSUEBOARD_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "ISSUEBOARD_ANTHROPIC_MODEL"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// maskSecret hides all but the last four characters of a secret.
func maskSecret(v string) string {
	switch {
	case v == "":
		return "(unset)"
	case len(v) <= 4:
		return "****"
	default:
		return "****" + v[len(v)-4:]
	}
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'issueboard config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
