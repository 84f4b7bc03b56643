package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/foyerhq/foyer/internal/config"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from the --data-dir flag or the
// FOYER_DATA_DIR env var. Empty means the store runs in memory.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	return os.Getenv("FOYER_DATA_DIR")
}

// openConfigStore opens the on-disk SQLite store for offline administration.
// Without a data dir there is nothing to administer: the default store is
// memory-resident and owned by the running server.
func openConfigStore() (*config.Store, error) {
	dir := resolveDataDir()
	if dir == "" {
		return nil, fmt.Errorf("no data directory configured: pass --data-dir or set FOYER_DATA_DIR (the default store is memory-resident)")
	}
	return config.NewStore(dir)
}

// loadYAMLConfig returns the effective file configuration: defaults overlaid
// by foyer.yaml when one is found. Viper locates the file so --config and
// the standard search paths both apply.
func loadYAMLConfig() *config.YAMLConfig {
	path := viper.ConfigFileUsed()
	if path == "" {
		return config.DefaultYAMLConfig()
	}
	cfg, err := config.LoadYAMLConfig(path)
	if err != nil {
		return config.DefaultYAMLConfig()
	}
	return cfg
}

// --- PID file management ---

// runtimeDir holds runtime artifacts (the PID file). It is independent of
// the store location so status and stop work in memory mode too.
func runtimeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".foyer")
}

func pidFilePath() string {
	return filepath.Join(runtimeDir(), "foyer.pid")
}

func writePID(pid int) error {
	if err := os.MkdirAll(runtimeDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
