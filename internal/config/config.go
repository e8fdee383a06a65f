// Package config loads service settings from the environment and on-chain
// identifiers from a deployments file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"sponsorrail/internal/ledger"
	"sponsorrail/internal/poll"
	"sponsorrail/internal/workflow"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SPONSORRAIL_"

const defaultDeploymentsPath = "deployments.json"

// Deployments mirrors deployments.json (or .yaml).
type Deployments struct {
	Network             string `json:"network" yaml:"network"`
	CoinType            string `json:"coinType" yaml:"coinType"`
	workflow.Deployment `yaml:",inline"`
}

// PollConfig is one bounded poll as read from the environment. Zero fields
// fall back to defaults.
type PollConfig struct {
	Attempts     int           `env:"ATTEMPTS"`
	InitialDelay time.Duration `env:"INITIAL_DELAY"`
	Interval     time.Duration `env:"INTERVAL"`
	MaxInterval  time.Duration `env:"MAX_INTERVAL"`
	Multiplier   float64       `env:"MULTIPLIER"`
}

type ServiceConfig struct {
	Environment          string        `env:"ENV" envDefault:"production"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort             int           `env:"HTTP_PORT" envDefault:"3000"`
	HMACSecrets          []string      `env:"HMAC_SECRETS" envSeparator:","`
	HMACClockSkew        time.Duration `env:"HMAC_CLOCK_SKEW" envDefault:"60s"`
	IdempotencyWindow    time.Duration `env:"IDEMPOTENCY_WINDOW" envDefault:"24h"`
	IdempotencyStore     string        `env:"IDEMPOTENCY_STORE" envDefault:"memory"`
	IdempotencyStorePath string        `env:"IDEMPOTENCY_STORE_PATH"`
	IdempotencyPurge     time.Duration `env:"IDEMPOTENCY_PURGE_INTERVAL" envDefault:"1h"`
	PostgresDSN          string        `env:"POSTGRES_DSN"`
	ReconcileStore       string        `env:"RECONCILE_STORE" envDefault:"memory"`
	ReconcileStorePath   string        `env:"RECONCILE_STORE_PATH"`
	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL"`
}

type ChainConfig struct {
	RPCURL            string        `env:"RPC_URL" envDefault:"https://fullnode.testnet.sui.io:443"`
	RequestsPerSecond int           `env:"RPC_REQUESTS_PER_SECOND" envDefault:"20"`
	RPCTimeout        time.Duration `env:"RPC_TIMEOUT" envDefault:"30s"`
	GasPriceTTL       time.Duration `env:"GAS_PRICE_TTL" envDefault:"10m"`
	SponsorSecret     string        `env:"SPONSOR_SECRET"`
}

type WorkflowConfig struct {
	KioskBudget    uint64     `env:"KIOSK_GAS_BUDGET" envDefault:"50000000"`
	MintBudget     uint64     `env:"MINT_GAS_BUDGET" envDefault:"50000000"`
	TransferBudget uint64     `env:"TRANSFER_GAS_BUDGET" envDefault:"20000000"`
	MetadataBudget uint64     `env:"METADATA_GAS_BUDGET" envDefault:"20000000"`
	MinBalance     uint64     `env:"MIN_SPONSOR_BALANCE"`
	KioskVerify    PollConfig `envPrefix:"KIOSK_VERIFY_"`
	MintConfirm    PollConfig `envPrefix:"MINT_CONFIRM_"`
	DeliveryVerify PollConfig `envPrefix:"DELIVERY_VERIFY_"`
}

// AppConfig ties together environment settings and the deployments file.
type AppConfig struct {
	DeploymentsPath string `env:"DEPLOYMENTS_PATH"`
	Service         ServiceConfig
	Chain           ChainConfig
	Workflow        WorkflowConfig
	Deployment      Deployments `env:"-"`

	// Defaulted lists settings that were filled in by code rather than
	// configuration, for startup logging.
	Defaulted []string `env:"-"`
}

var (
	defaultKioskVerify    = poll.Policy{Attempts: 5, Interval: time.Second, MaxInterval: 4 * time.Second, Multiplier: 2}
	defaultMintConfirm    = poll.Policy{Attempts: 5, InitialDelay: 2 * time.Second, Interval: time.Second, MaxInterval: 4 * time.Second, Multiplier: 2}
	defaultDeliveryVerify = poll.Policy{Attempts: 5, InitialDelay: 2 * time.Second, Interval: time.Second, MaxInterval: 4 * time.Second, Multiplier: 2}
)

// Load aggregates configuration from the environment and disk.
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	path := cfg.DeploymentsPath
	if path == "" {
		path = defaultDeploymentsPath
	}
	dep, err := LoadDeployments(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && cfg.DeploymentsPath == "":
		dep = DefaultDeployments()
		cfg.Defaulted = append(cfg.Defaulted, "deployments")
	case err != nil:
		return nil, fmt.Errorf("load deployments: %w", err)
	}
	cfg.Deployment = dep

	switch cfg.Service.IdempotencyStore {
	case "memory", "file", "postgres":
	default:
		return nil, fmt.Errorf("unknown idempotency store %q", cfg.Service.IdempotencyStore)
	}
	switch cfg.Service.ReconcileStore {
	case "memory", "file", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unknown reconcile store %q", cfg.Service.ReconcileStore)
	}
	if cfg.Service.IdempotencyStorePath == "" {
		cfg.Service.IdempotencyStorePath = filepath.Join(os.TempDir(), "sponsorrail-idem.json")
	}
	if cfg.Service.ReconcileStorePath == "" {
		cfg.Service.ReconcileStorePath = filepath.Join(os.TempDir(), "sponsorrail-reconcile.db")
	}
	return &cfg, nil
}

// DefaultDeployments targets the framework kiosk module on the native coin.
func DefaultDeployments() Deployments {
	return Deployments{CoinType: ledger.SUICoinType, Deployment: workflow.DefaultDeployment()}
}

// LoadDeployments reads a JSON or YAML deployments file. Fields absent from
// the file keep their defaults.
func LoadDeployments(path string) (Deployments, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Deployments{}, err
	}
	dep := DefaultDeployments()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &dep)
	default:
		err = json.Unmarshal(raw, &dep)
	}
	if err != nil {
		return Deployments{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := dep.Validate(); err != nil {
		return Deployments{}, fmt.Errorf("%s: %w", path, err)
	}
	return dep, nil
}

func (d Deployments) Validate() error {
	k, c := d.Kiosk, d.Credential
	switch {
	case d.CoinType == "":
		return errors.New("coinType is required")
	case k.NewTarget == "" || k.ShareTarget == "" || k.KioskType == "":
		return errors.New("kiosk targets are incomplete")
	case k.Kiosk.Contains == "" || k.OwnerCap.Contains == "":
		return errors.New("kiosk matchers need a type pattern")
	case c.Module == "" || c.Function == "":
		return errors.New("credential module and function are required")
	case c.Token.Contains == "":
		return errors.New("credential token matcher needs a type pattern")
	}
	return nil
}

// Policies resolves the poll policies, filling unset fields from defaults.
func (c *AppConfig) Policies() workflow.Policies {
	return workflow.Policies{
		KioskVerify:    c.Workflow.KioskVerify.policy(defaultKioskVerify),
		MintConfirm:    c.Workflow.MintConfirm.policy(defaultMintConfirm),
		DeliveryVerify: c.Workflow.DeliveryVerify.policy(defaultDeliveryVerify),
	}
}

func (c *AppConfig) Budgets() workflow.Budgets {
	return workflow.Budgets{
		Kiosk:      c.Workflow.KioskBudget,
		Mint:       c.Workflow.MintBudget,
		Transfer:   c.Workflow.TransferBudget,
		Metadata:   c.Workflow.MetadataBudget,
		MinBalance: c.Workflow.MinBalance,
	}
}

func (p PollConfig) policy(def poll.Policy) poll.Policy {
	out := def
	if p.Attempts > 0 {
		out.Attempts = p.Attempts
	}
	if p.InitialDelay > 0 {
		out.InitialDelay = p.InitialDelay
	}
	if p.Interval > 0 {
		out.Interval = p.Interval
	}
	if p.MaxInterval > 0 {
		out.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		out.Multiplier = p.Multiplier
	}
	return out
}
