// Package cfg holds the process configuration for blockfsctl: the backing
// image path and size used by format, and the debug knobs that affect how
// invariant violations across the storage stack are reported.
package cfg

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the merged view of flags, environment and config file produced
// by BindFlags + viper.Unmarshal.
type Config struct {
	// Path to the flat disk image backing the filesystem.
	ImagePath string `yaml:"image-path"`

	// Number of 512-byte sectors to format the image with, when creating a
	// new one. Unused by commands that only open an existing image.
	ImageSectors uint32 `yaml:"image-sectors"`

	Debug DebugConfig `yaml:"debug"`

	Logging LoggingConfig `yaml:"logging"`
}

type DebugConfig struct {
	// Decoded from the debug.exit-on-invariant-violation flag. No component
	// reads it: an invariant violation detected by an InvariantMutex panics
	// whatever its value.
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
}

type LoggingConfig struct {
	// "trace", "debug", "info", "warning", "error".
	Severity string `yaml:"severity"`

	// "text" or "json".
	Format string `yaml:"format"`

	// Optional path to a log file. Empty means stderr. Rotated via
	// lumberjack when set.
	FilePath string `yaml:"file-path"`
}

// BindFlags registers the pflag flags that back Config and wires each to
// viper under the matching key. Call viper.Unmarshal(&cfg) after
// flagSet.Parse to populate a Config.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.StringP("image-path", "f", "blockfs.img", "Path to the disk image.")
	if err := viper.BindPFlag("image-path", flagSet.Lookup("image-path")); err != nil {
		return err
	}

	flagSet.Uint32P("image-sectors", "s", 8192, "Sector count to format a new image with.")
	if err := viper.BindPFlag("image-sectors", flagSet.Lookup("image-sectors")); err != nil {
		return err
	}

	flagSet.Bool("debug.exit-on-invariant-violation", false, "Recorded in the decoded config; invariant violations panic regardless.")
	if err := viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug.exit-on-invariant-violation")); err != nil {
		return err
	}

	flagSet.String("logging.severity", "info", "Minimum log severity: trace, debug, info, warning, error.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("logging.severity")); err != nil {
		return err
	}

	flagSet.String("logging.format", "text", "Log encoding: text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("logging.format")); err != nil {
		return err
	}

	flagSet.String("logging.file-path", "", "Log file path. Empty means stderr.")
	if err := viper.BindPFlag("logging.file-path", flagSet.Lookup("logging.file-path")); err != nil {
		return err
	}

	return nil
}

// Decode unmarshals viper's merged state (flags, env, config file) into a
// fresh Config, matching keys against the fields' yaml tags.
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	useYAMLTags := func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }
	if err := v.Unmarshal(&c, useYAMLTags); err != nil {
		return Config{}, err
	}
	return c, nil
}
