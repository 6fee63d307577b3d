package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vsbld/crypto"
	"vsbld/native/access"
	"vsbld/native/credits"
	"vsbld/native/services"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress        string `toml:"ListenAddress"`
	RPCAddress           string `toml:"RPCAddress"`
	DataDir              string `toml:"DataDir"`
	GenesisFile          string `toml:"GenesisFile"`
	AdminKeystorePath    string `toml:"AdminKeystorePath"`
	AdminKMSURI          string `toml:"AdminKMSURI"`
	AdminKMSEnv          string `toml:"AdminKMSEnv"`
	NetworkName          string `toml:"NetworkName"`

	// Engine tunable constants. Zero-valued in a freshly unmarshaled file
	// means "use the compiled-in default"; applyEngineDefaults fills them in
	// before applyEngineConfig installs them.
	CreatorFeePPM              int64 `toml:"CreatorFeePPM"`
	ProtocolFeePPM             int64 `toml:"ProtocolFeePPM"`
	ReferrerFeePPM             int64 `toml:"ReferrerFeePPM"`
	AutoValidationDelaySeconds int64 `toml:"AutoValidationDelaySeconds"`
	InitialAdminDelaySeconds   int64 `toml:"InitialAdminDelaySeconds"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}

	for _, undecoded := range meta.Undecoded() {
		if len(undecoded) == 1 && undecoded[0] == "ValidatorKey" {
			return nil, fmt.Errorf("config file %s uses deprecated ValidatorKey field; run vsbldctl migrate-keystore", path)
		}
	}

	if cfg.AdminKMSURI == "" && cfg.AdminKMSEnv == "" {
		if err := ensureKeystore(path, cfg); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "vsbld-local"
	}

	cfg.applyEngineDefaults()
	if err := applyEngineConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEngineDefaults fills in the compiled-in engine constants for any
// tunable the config file left at its zero value.
func (cfg *Config) applyEngineDefaults() {
	if cfg.CreatorFeePPM == 0 {
		cfg.CreatorFeePPM = credits.CreatorFeePPM
	}
	if cfg.ProtocolFeePPM == 0 {
		cfg.ProtocolFeePPM = credits.ProtocolFeePPM
	}
	if cfg.ReferrerFeePPM == 0 {
		cfg.ReferrerFeePPM = credits.ReferrerFeePPM
	}
	if cfg.AutoValidationDelaySeconds == 0 {
		cfg.AutoValidationDelaySeconds = services.AutoValidationDelay
	}
	if cfg.InitialAdminDelaySeconds == 0 {
		cfg.InitialAdminDelaySeconds = access.InitialAdminDelay
	}
}

// applyEngineConfig installs the config's fee schedule and delays into the
// credits, services, and access packages. ProtocolFeePPM must strictly
// exceed ReferrerFeePPM (§4.1.2); violating that yields InvalidFeeParams.
func applyEngineConfig(cfg *Config) error {
	if err := credits.Configure(cfg.CreatorFeePPM, cfg.ProtocolFeePPM, cfg.ReferrerFeePPM); err != nil {
		return fmt.Errorf("configure fee schedule: %w", err)
	}
	services.Configure(cfg.AutoValidationDelaySeconds)
	access.Configure(cfg.InitialAdminDelaySeconds)
	return nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.AdminKeystorePath != keystorePath {
		cfg.AdminKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress: ":6001",
		RPCAddress:    ":8080",
		DataDir:       "./vsbld-data",
		GenesisFile:   "",
		NetworkName:   "vsbld-local",
	}
	cfg.AdminKeystorePath = keystorePath
	cfg.applyEngineDefaults()
	if err := applyEngineConfig(cfg); err != nil {
		return nil, err
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}
