package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for folio
type Config struct {
	Manifest   ManifestConfig   `mapstructure:"manifest"`
	Publish    PublishConfig    `mapstructure:"publish"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Typeset    TypesetConfig    `mapstructure:"typeset"`
	Summary    SummaryConfig    `mapstructure:"summary"`
}

// ManifestConfig controls where publish manifests are looked up.
type ManifestConfig struct {
	Filenames []string `mapstructure:"filenames"`
	// Search holds extra directory rules; {repo_root} and {cwd} are expanded.
	Search []string `mapstructure:"search"`
}

// PublishConfig holds run-wide publishing defaults
type PublishConfig struct {
	Dir         string `mapstructure:"dir"`
	PaperFormat string `mapstructure:"paper_format"`
	Parallel    int    `mapstructure:"parallel"`
}

// PreprocessConfig holds wide-content detection constants
type PreprocessConfig struct {
	ColumnWidthMM  float64 `mapstructure:"column_width_mm"`
	PixelsPerMM    float64 `mapstructure:"pixels_per_mm"`
	MinColsForWrap int     `mapstructure:"min_cols_for_wrap"`
}

// TypesetConfig holds the external typesetter settings
type TypesetConfig struct {
	Binary   string        `mapstructure:"binary"`
	Engine   string        `mapstructure:"engine"`
	From     string        `mapstructure:"from"`
	To       string        `mapstructure:"to"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TOCDepth int           `mapstructure:"toc_depth"`
	Fonts    FontConfig    `mapstructure:"fonts"`
}

// FontConfig holds font family defaults
type FontConfig struct {
	Main              string   `mapstructure:"main"`
	Sans              string   `mapstructure:"sans"`
	Mono              string   `mapstructure:"mono"`
	CJK               string   `mapstructure:"cjk"`
	RequireColorEmoji bool     `mapstructure:"require_color_emoji"`
	Dirs              []string `mapstructure:"dirs"`
}

// SummaryConfig holds summary synthesis defaults
type SummaryConfig struct {
	ManualMarker string `mapstructure:"manual_marker"`
}

var defaultConfig = Config{
	Manifest: ManifestConfig{
		Filenames: []string{"publish.yml", "publish.yaml"},
		Search:    []string{},
	},
	Publish: PublishConfig{
		Dir:         "publish",
		PaperFormat: "a4",
		Parallel:    1,
	},
	Preprocess: PreprocessConfig{
		ColumnWidthMM:  25,
		PixelsPerMM:    11.81,
		MinColsForWrap: 10,
	},
	Typeset: TypesetConfig{
		Binary:  "pandoc",
		Engine:  "lualatex",
		From:    "markdown",
		Timeout: 0,
		Fonts: FontConfig{
			Main: "DejaVu Serif",
			Sans: "DejaVu Sans",
			Mono: "DejaVu Sans Mono",
			CJK:  "Noto Sans CJK SC",
			Dirs: []string{},
		},
	},
	Summary: SummaryConfig{
		ManualMarker: "<!-- SUMMARY: MANUAL -->",
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	c.Manifest.Filenames = append([]string(nil), defaultConfig.Manifest.Filenames...)
	c.Manifest.Search = append([]string(nil), defaultConfig.Manifest.Search...)
	c.Typeset.Fonts.Dirs = append([]string(nil), defaultConfig.Typeset.Fonts.Dirs...)
	return &c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("manifest.filenames", defaultConfig.Manifest.Filenames)
	v.SetDefault("manifest.search", defaultConfig.Manifest.Search)

	v.SetDefault("publish.dir", defaultConfig.Publish.Dir)
	v.SetDefault("publish.paper_format", defaultConfig.Publish.PaperFormat)
	v.SetDefault("publish.parallel", defaultConfig.Publish.Parallel)

	v.SetDefault("preprocess.column_width_mm", defaultConfig.Preprocess.ColumnWidthMM)
	v.SetDefault("preprocess.pixels_per_mm", defaultConfig.Preprocess.PixelsPerMM)
	v.SetDefault("preprocess.min_cols_for_wrap", defaultConfig.Preprocess.MinColsForWrap)

	v.SetDefault("typeset.binary", defaultConfig.Typeset.Binary)
	v.SetDefault("typeset.engine", defaultConfig.Typeset.Engine)
	v.SetDefault("typeset.from", defaultConfig.Typeset.From)
	v.SetDefault("typeset.to", defaultConfig.Typeset.To)
	v.SetDefault("typeset.timeout", defaultConfig.Typeset.Timeout)
	v.SetDefault("typeset.toc_depth", defaultConfig.Typeset.TOCDepth)
	v.SetDefault("typeset.fonts.main", defaultConfig.Typeset.Fonts.Main)
	v.SetDefault("typeset.fonts.sans", defaultConfig.Typeset.Fonts.Sans)
	v.SetDefault("typeset.fonts.mono", defaultConfig.Typeset.Fonts.Mono)
	v.SetDefault("typeset.fonts.cjk", defaultConfig.Typeset.Fonts.CJK)
	v.SetDefault("typeset.fonts.require_color_emoji", defaultConfig.Typeset.Fonts.RequireColorEmoji)
	v.SetDefault("typeset.fonts.dirs", defaultConfig.Typeset.Fonts.Dirs)

	v.SetDefault("summary.manual_marker", defaultConfig.Summary.ManualMarker)
}

// LoadConfig loads configuration from defaults, the user config file and
// FOLIO_* environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("folio")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if configDir, err := GetConfigDir(); err == nil {
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix("FOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("error reading config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// projectConfigs lists the repository-level config files, first match wins.
var projectConfigs = []string{
	".folio.yaml",
	".folio.yml",
	".folio.json",
}

// LoadProjectConfig loads the global configuration and overlays the first
// project config file found in repoRoot.
func LoadProjectConfig(repoRoot string) (*Config, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if repoRoot == "" {
		return config, nil
	}

	for _, name := range projectConfigs {
		path := filepath.Join(repoRoot, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading project config %s: %w", path, err)
		}
		if err := v.Unmarshal(config); err != nil {
			return nil, fmt.Errorf("error unmarshaling project config %s: %w", path, err)
		}
		break
	}
	return config, nil
}

// ExpandSearchRule substitutes {repo_root} and {cwd} in a manifest search rule.
func ExpandSearchRule(rule, repoRoot, cwd string) string {
	r := strings.NewReplacer("{repo_root}", repoRoot, "{cwd}", cwd)
	return filepath.Clean(r.Replace(rule))
}

// GetFolioHome returns the folio home directory
func GetFolioHome() (string, error) {
	if home := os.Getenv("FOLIO_HOME"); home != "" {
		return home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".folio"), nil
}

// GetConfigDir returns the config directory; it is not created.
func GetConfigDir() (string, error) {
	homeDir, err := GetFolioHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, "config"), nil
}
