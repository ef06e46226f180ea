// Package config loads process configuration for the three territory
// roles (tile, client, orchestrator) from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from .env file and environment variables.
// prefix: Environment variable prefix (e.g. "TERRITORY_").
// target: Pointer to the config struct to load into.
func Load(prefix string, target interface{}) error {
	// A non-dot key delimiter keeps "log.level" a flat key, so it matches
	// the dotted mapstructure tags on the target struct.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))

	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Optional file; a read or parse error is ignored here.
		}
	}

	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, value := pair[0], pair[1]

		if strings.HasPrefix(key, prefixUpper) {
			propKey := strings.TrimPrefix(key, prefixUpper)
			propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
			propKey = strings.TrimPrefix(propKey, ".")
			v.Set(propKey, value)
		}
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// Runtime holds the ambient logging/server settings shared by all roles,
// loaded via Load under the "TERRITORY_" prefix (e.g. TERRITORY_LOG_LEVEL).
type Runtime struct {
	LogLevel  string `mapstructure:"log.level"`
	LogFormat string `mapstructure:"log.format"`
}

func defaultRuntime() Runtime {
	return Runtime{LogLevel: "INFO", LogFormat: "json"}
}

// LoadRuntime loads the ambient settings, applying defaults for anything unset.
func LoadRuntime() Runtime {
	rt := defaultRuntime()
	_ = Load("TERRITORY_", &rt)
	if rt.LogLevel == "" {
		rt.LogLevel = "INFO"
	}
	if rt.LogFormat == "" {
		rt.LogFormat = "json"
	}
	return rt
}

// TileEnv is the literal environment contract spec.md §6 names for a tile
// process. These are flat variable names, not dotted/prefixed ones, so they
// are read directly rather than through the viper-prefixed Load path.
type TileEnv struct {
	MasterURL    string // MASTER_URL, required
	GameID       string // GAME_ID, required
	CoordQHint   *int   // NODE_COORD_Q, optional spawn hint
	CoordRHint   *int   // NODE_COORD_R, optional spawn hint
	NodeIP       string // NODE_IP, overrides metadata-service autodiscovery
	TaskARN      string // TASK_ARN, overrides metadata-service autodiscovery
}

// LoadTileEnv reads the tile's required and optional environment variables.
func LoadTileEnv() (TileEnv, error) {
	env := TileEnv{
		MasterURL: os.Getenv("MASTER_URL"),
		GameID:    os.Getenv("GAME_ID"),
		NodeIP:    os.Getenv("NODE_IP"),
		TaskARN:   os.Getenv("TASK_ARN"),
	}
	if env.MasterURL == "" {
		return env, fmt.Errorf("MASTER_URL is required")
	}
	if env.GameID == "" {
		return env, fmt.Errorf("GAME_ID is required")
	}
	if q, ok := os.LookupEnv("NODE_COORD_Q"); ok {
		v, err := strconv.Atoi(q)
		if err != nil {
			return env, fmt.Errorf("NODE_COORD_Q: %w", err)
		}
		env.CoordQHint = &v
	}
	if r, ok := os.LookupEnv("NODE_COORD_R"); ok {
		v, err := strconv.Atoi(r)
		if err != nil {
			return env, fmt.Errorf("NODE_COORD_R: %w", err)
		}
		env.CoordRHint = &v
	}
	return env, nil
}

// ClientEnv is the environment contract for the degenerate client role.
type ClientEnv struct {
	MasterURL string // MASTER_URL, required
}

// LoadClientEnv reads the client's required environment variables.
func LoadClientEnv() (ClientEnv, error) {
	env := ClientEnv{MasterURL: os.Getenv("MASTER_URL")}
	if env.MasterURL == "" {
		return env, fmt.Errorf("MASTER_URL is required")
	}
	return env, nil
}

// OrchestratorEnv is the environment contract for the orchestrator process.
type OrchestratorEnv struct {
	SubnetID        string
	SecurityGroupID string
	ClusterName     string
}

// LoadOrchestratorEnv reads the orchestrator's environment variables. All are
// optional in local dev (they only matter once real container spawning is
// wired in, which is out of scope here).
func LoadOrchestratorEnv() OrchestratorEnv {
	return OrchestratorEnv{
		SubnetID:        os.Getenv("SUBNET_ID"),
		SecurityGroupID: os.Getenv("SECURITY_GROUP_ID"),
		ClusterName:     os.Getenv("CLUSTER_NAME"),
	}
}
