package netconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overrides carries the scalar values the CLI and environment layers may
// contribute, already extracted from cobra/viper by the caller (see
// cmd/preboot-oxide). Pointers distinguish "not provided" from "provided
// as empty"; nil means the layer did not set this field.
type Overrides struct {
	Ifaces        []string
	TftpServerDir *string
	BootFile      *string
	BootServerIP  *string
	MaxSessions   *int
}

// EnvOverrides reads the PO_* environment variables listed in §6 and
// returns them as an Overrides. Unset variables leave the corresponding
// field nil/empty.
func EnvOverrides() Overrides {
	var o Overrides
	if v := os.Getenv("PO_IFACES"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				o.Ifaces = append(o.Ifaces, s)
			}
		}
	}
	if v, ok := os.LookupEnv("PO_TFTP_SERVER_DIR_PATH"); ok {
		o.TftpServerDir = &v
	}
	if v, ok := os.LookupEnv("PO_BOOT_FILE"); ok {
		o.BootFile = &v
	}
	if v, ok := os.LookupEnv("PO_TFTP_SERVER_IPV4"); ok {
		o.BootServerIP = &v
	}
	if v, ok := os.LookupEnv("PO_MAX_SESSIONS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			o.MaxSessions = &n
		}
	}
	return o
}

// DefaultConfPath returns $HOME/.config/preboot-oxide/preboot-oxide.yaml,
// or "" if $HOME can't be determined (§6).
func DefaultConfPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "preboot-oxide", "preboot-oxide.yaml")
}

// ConfPath resolves the YAML config path honoring PO_CONF_PATH, falling
// back to DefaultConfPath.
func ConfPath(cliPath string) string {
	if cliPath != "" {
		return cliPath
	}
	if v := os.Getenv("PO_CONF_PATH"); v != "" {
		return v
	}
	return DefaultConfPath()
}

// LoadYAML reads and unmarshals the YAML config file at path. A missing
// file is not an error — it yields a zero Config, so a deployment that
// configures everything via flags/env still works.
func LoadYAML(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("netconf: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("netconf: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Merge overlays o onto cfg, returning the result. Only fields o actually
// sets (non-nil pointers, non-empty slices) replace cfg's fields — this is
// the building block Load uses to apply the ENV, YAML and CLI layers in
// ascending priority, per §6: "CLI arguments > YAML file > environment
// variables > built-in defaults".
func Merge(cfg Config, o Overrides) Config {
	if len(o.Ifaces) > 0 {
		cfg.Ifaces = o.Ifaces
	}
	if o.TftpServerDir != nil {
		cfg.TftpServerDir = *o.TftpServerDir
	}
	if o.BootFile != nil {
		cfg.Default.BootFile = o.BootFile
	}
	if o.BootServerIP != nil {
		cfg.Default.BootServerIPv4 = o.BootServerIP
	}
	if o.MaxSessions != nil {
		cfg.MaxSessions = *o.MaxSessions
	}
	return cfg
}

// Load resolves the full configuration: environment variables first, then
// the values the YAML file sets on top of them, then CLI overrides (cli
// wins last, per §6), and finally the built-in defaults for anything still
// unset.
func Load(cliConfPath string, cli Overrides) (Config, error) {
	cfg, err := LoadYAML(ConfPath(cliConfPath))
	if err != nil {
		return Config{}, err
	}

	yamlLayer := Overrides{
		Ifaces:       cfg.Ifaces,
		BootFile:     cfg.Default.BootFile,
		BootServerIP: cfg.Default.BootServerIPv4,
	}
	if cfg.TftpServerDir != "" {
		yamlLayer.TftpServerDir = &cfg.TftpServerDir
	}
	if cfg.MaxSessions != 0 {
		yamlLayer.MaxSessions = &cfg.MaxSessions
	}
	cfg = Merge(Merge(Config{Match: cfg.Match}, EnvOverrides()), yamlLayer)
	cfg = Merge(cfg, cli)

	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}

	return cfg, nil
}
