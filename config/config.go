package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"rwalend/crypto"
)

// PassphraseEnv names the environment variable consulted when a default
// configuration has to create the admin keystore.
const PassphraseEnv = "RWALEND_KEYSTORE_PASSPHRASE"

var errMissingPassphrase = errors.New("config: keystore passphrase required to create the admin key")

// Config holds the genesis parameters of a protocol deployment.
type Config struct {
	Admin             string         `toml:"Admin"`
	AdminKeystorePath string         `toml:"AdminKeystorePath"`
	DataDir           string         `toml:"DataDir"`
	Protocol          Protocol       `toml:"Protocol"`
	Token             Token          `toml:"Token"`
	Oracles           []OracleConfig `toml:"Oracles"`
	Quota             Quota          `toml:"Quota"`
	Pauses            Pauses         `toml:"Pauses"`
}

type loadOptions struct {
	passphrase    string
	passphraseSet bool
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

// WithKeystorePassphrase supplies the passphrase used when Load creates the
// admin keystore. It takes precedence over PassphraseEnv.
func WithKeystorePassphrase(passphrase string) LoadOption {
	return func(o *loadOptions) {
		o.passphrase = passphrase
		o.passphraseSet = true
	}
}

// Load reads the configuration at path. A missing file is replaced by a
// default deployment whose admin key is generated and stored next to it.
func Load(path string, opts ...LoadOption) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.passphraseSet {
		options.passphrase = os.Getenv(PassphraseEnv)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options.passphrase)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	// Declared feeds replace the reference ones rather than merging into them.
	cfg.Oracles = nil
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(cfg.Oracles) == 0 {
		cfg.Oracles = defaultOracles()
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	cfg.normalize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the reference deployment with no admin.
func Default() *Config {
	return &Config{
		DataDir:  "./rwalend-data",
		Protocol: defaultProtocol(),
		Token:    defaultToken(),
		Oracles:  defaultOracles(),
	}
}

func (cfg *Config) normalize() {
	cfg.Admin = strings.TrimSpace(cfg.Admin)
	cfg.AdminKeystorePath = strings.TrimSpace(cfg.AdminKeystorePath)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.Protocol.normalize()
	for i := range cfg.Oracles {
		cfg.Oracles[i].normalize()
	}
}

// createDefault writes a default configuration file together with a freshly
// generated admin keystore.
func createDefault(path, passphrase string) (*Config, error) {
	if passphrase == "" {
		return nil, errMissingPassphrase
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Admin = key.PubKey().Address().String()
	cfg.AdminKeystorePath = keystorePath
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
