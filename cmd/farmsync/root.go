package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/farmsync/farmsync"
	"github.com/farmsync/farmsync/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile        string
	cfgFarm        string
	cfgDBPath      string
	cfgURL         string
	cfgAPIKey      string
	cfgPostgresDSN string
	cfgMode        string
	outputJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "farmsync",
	Short: "FarmSync - offline-first herd records",
	Long: `FarmSync keeps a farm's herd records in a local database and
synchronizes them with the farm's remote database when a connection
is available.

Records can be created and edited offline; pending changes are uploaded
on the next sync and remote changes are downloaded after every upload.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if isTTY() {
			fmt.Fprintln(cmd.OutOrStdout(), renderBannerWithTagline())
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return cmd.Help()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ~/.farmsync/config.yaml)")
	pf.StringVar(&cfgFarm, "farm", "", "Farm profile to use (default: $FARMSYNC_FARM or 'default')")
	pf.StringVar(&cfgDBPath, "db-path", "", "Path to the local database (default: derived from the farm)")
	pf.StringVar(&cfgURL, "url", "", "Base URL of the remote REST API")
	pf.StringVar(&cfgAPIKey, "api-key", "", "API key for the remote REST API")
	pf.StringVar(&cfgPostgresDSN, "postgres-dsn", "", "Connect directly to the remote Postgres database")
	pf.StringVar(&cfgMode, "mode", "", "Record mode: offline or direct")
	pf.BoolVar(&outputJSON, "json", false, "Output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupSync, Title: "Sync Commands:"},
		&cobra.Group{ID: groupRecords, Title: "Herd Records:"},
		&cobra.Group{ID: groupFarm, Title: "Farm Data:"},
		&cobra.Group{ID: groupService, Title: "Services:"},
	)
	addGrouped(groupSync, syncCmd, statusCmd, remoteCmd)
	addGrouped(groupRecords, animalsCmd, photosCmd)
	addGrouped(groupFarm, farmsCmd, statsCmd, exportCmd, importCmd)
	addGrouped(groupService, serveCmd, mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func addGrouped(group string, cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.GroupID = group
		rootCmd.AddCommand(c)
	}
}

// newViper layers the config file and FARMSYNC_* environment variables.
// Keys use the environment names without the prefix, lower-cased.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("FARMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("auto_sync", false)
	v.SetDefault("log_level", "warn")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(store.DefaultRoot())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Flags win over file and environment
	for key, val := range map[string]string{
		"farm":         cfgFarm,
		"db_path":      cfgDBPath,
		"url":          cfgURL,
		"api_key":      cfgAPIKey,
		"postgres_dsn": cfgPostgresDSN,
		"mode":         cfgMode,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}
	return v, nil
}

// loadConfig resolves the client configuration for a command.
func loadConfig() (farmsync.Config, error) {
	v, err := newViper()
	if err != nil {
		return farmsync.Config{}, err
	}

	cfg := farmsync.Config{
		Farm:          v.GetString("farm"),
		LocalPath:     v.GetString("db_path"),
		Mode:          farmsync.Mode(v.GetString("mode")),
		Remote:        v.GetString("remote"),
		URL:           v.GetString("url"),
		APIKey:        v.GetString("api_key"),
		PostgresDSN:   v.GetString("postgres_dsn"),
		Storage:       v.GetString("storage"),
		Bucket:        v.GetString("bucket"),
		S3Region:      v.GetString("s3_region"),
		S3Endpoint:    v.GetString("s3_endpoint"),
		PublicURL:     v.GetString("public_url"),
		PhotoDir:      v.GetString("photo_dir"),
		SyncInterval:  v.GetDuration("sync_interval"),
		ProbeInterval: v.GetDuration("probe_interval"),
		AutoSync:      v.GetBool("auto_sync"),
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
		LogFile:       v.GetString("log_file"),
	}
	if cfg.Farm != "" {
		if err := store.ValidateFarmID(cfg.Farm); err != nil {
			return farmsync.Config{}, fmt.Errorf("invalid farm: %w", err)
		}
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// openClient loads the configuration and creates a client.
func openClient() (*farmsync.Client, farmsync.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	return openClientWith(cfg)
}

func openClientWith(cfg farmsync.Config) (*farmsync.Client, farmsync.Config, error) {
	client, err := farmsync.New(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("initialize client: %w", err)
	}
	return client, cfg, nil
}

// requireStore returns the client's local store, which direct mode lacks.
func requireStore(client *farmsync.Client) (*farmsync.Store, error) {
	s := client.Store()
	if s == nil {
		return nil, errors.New("this command needs the local database (mode is direct)")
	}
	return s, nil
}
