// Package config loads the lotteryd TOML configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"ledgerlottery/internal/ledger"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
)

// Entropy sources.
const (
	EntropyChain  = "chain"
	EntropyRandom = "random"
)

type Config struct {
	Listen  string        `toml:"listen"`
	Verbose bool          `toml:"verbose"`
	Store   StoreConfig   `toml:"store"`
	Lottery LotteryConfig `toml:"lottery"`
	Entropy EntropyConfig `toml:"entropy"`
	Kafka   KafkaConfig   `toml:"kafka"`
	// EventBuffer is how many recent events GET /events can return.
	EventBuffer int `toml:"event_buffer"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

type LotteryConfig struct {
	FeeBps          uint32 `toml:"fee_bps"`
	PlatformAccount string `toml:"platform_account"`
	// Minters may fund wallets over HTTP. With none, deposits are refused.
	Minters []string `toml:"minters"`
}

type EntropyConfig struct {
	Source         string        `toml:"source"`
	RPCURL         string        `toml:"rpc_url"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	MaxRetries     uint64        `toml:"max_retries"`
}

type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// DevPlatformAccount is the fee account used when none is configured.
var DevPlatformAccount = ledger.Derive([]byte("lotteryd-dev-platform")).Hex()

// Default returns a configuration suitable for local development. Fees go
// to DevPlatformAccount and no identity may mint.
func Default() Config {
	return Config{
		Listen: ":8080",
		Store: StoreConfig{
			Driver: DriverBolt,
			Path:   "lottery.db",
		},
		Lottery: LotteryConfig{
			FeeBps:          1000,
			PlatformAccount: DevPlatformAccount,
		},
		Entropy: EntropyConfig{
			Source:         EntropyRandom,
			RequestTimeout: 5 * time.Second,
			MaxRetries:     3,
		},
		EventBuffer: 1000,
	}
}

// Load reads path on top of the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, errors.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	return cfg, nil
}

// Platform parses the platform account identity.
func (c Config) Platform() (ledger.Address, error) {
	return ledger.ParseAddress(c.Lottery.PlatformAccount)
}

// Minters parses the minter identities.
func (c Config) Minters() ([]ledger.Address, error) {
	out := make([]ledger.Address, 0, len(c.Lottery.Minters))
	for i, raw := range c.Lottery.Minters {
		a, err := ledger.ParseAddress(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "lottery.minters[%d]", i)
		}
		if a == (ledger.Address{}) {
			return nil, errors.Errorf("lottery.minters[%d] is the zero address", i)
		}
		out = append(out, a)
	}
	return out, nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.Listen == "" {
		result = multierror.Append(result, errors.New("listen address is empty"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverBolt:
		if c.Store.Path == "" {
			result = multierror.Append(result, errors.New("store.path is required for the bolt driver"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Lottery.FeeBps > 10000 {
		result = multierror.Append(result, fmt.Errorf("lottery.fee_bps %d exceeds 10000", c.Lottery.FeeBps))
	}
	if _, err := c.Platform(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "lottery.platform_account"))
	}
	if _, err := c.Minters(); err != nil {
		result = multierror.Append(result, err)
	}
	switch c.Entropy.Source {
	case EntropyRandom:
	case EntropyChain:
		if c.Entropy.RPCURL == "" {
			result = multierror.Append(result, errors.New("entropy.rpc_url is required for the chain source"))
		}
		if c.Entropy.RequestTimeout <= 0 {
			result = multierror.Append(result, errors.New("entropy.request_timeout must be positive"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown entropy.source %q", c.Entropy.Source))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		result = multierror.Append(result, errors.New("kafka.topic is required when brokers are set"))
	}
	return result.ErrorOrNil()
}
