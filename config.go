package okto

import (
	"errors"
	"io/fs"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	DefaultBaseURL          = "https://sandbox-api.okto.tech/api/oc/v1"
	DefaultEntryPoint       = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
	DefaultPaymaster        = "0x74324fA6Fa67b833dfdea4C1b3A9898574d076e3"
	DefaultSponsorshipTTL   = 6 * time.Hour
	DefaultTransferValidity = time.Hour
)

// Environment variables read by LoadConfig. The VITE_ prefixed names are
// accepted as fallbacks for the two client credentials.
const (
	EnvClientSWA              = "OKTO_CLIENT_SWA"
	EnvClientPrivateKey       = "OKTO_CLIENT_PRIVATE_KEY"
	EnvEntryPoint             = "OKTO_ENTRY_POINT"
	EnvChainID                = "OKTO_CHAIN_ID"
	EnvTokenTTL               = "OKTO_TOKEN_TTL"
	EnvPaymaster              = "OKTO_PAYMASTER"
	EnvSponsorshipTTL         = "OKTO_SPONSORSHIP_TTL"
	EnvTransferSponsorshipTTL = "OKTO_TRANSFER_SPONSORSHIP_TTL"
	EnvBaseURL                = "OKTO_BASE_URL"
)

var envFallbacks = map[string]string{
	EnvClientSWA:        "VITE_OKTO_CLIENT_SWA",
	EnvClientPrivateKey: "VITE_OKTO_CLIENT_PRIVATE_KEY",
}

// Config carries everything the signing pipeline and the backend client
// need. It is passed explicitly; nothing reads the environment after
// LoadConfig.
type Config struct {
	ClientSWA        string
	ClientPrivateKey string
	EntryPoint       common.Address
	// ChainID is used when an operation does not name its chain.
	ChainID                *big.Int
	TokenTTL               time.Duration
	PaymasterAddress       common.Address
	SponsorshipTTL         time.Duration
	TransferSponsorshipTTL time.Duration
	BaseURL                string
}

// DefaultConfig returns a Config without client credentials.
func DefaultConfig() *Config {
	return &Config{
		EntryPoint:             common.HexToAddress(DefaultEntryPoint),
		TokenTTL:               DefaultTokenTTL,
		PaymasterAddress:       common.HexToAddress(DefaultPaymaster),
		SponsorshipTTL:         DefaultSponsorshipTTL,
		TransferSponsorshipTTL: DefaultTransferValidity,
		BaseURL:                DefaultBaseURL,
	}
}

// LoadConfig reads the given dotenv files (".env" when none are named),
// ignoring missing ones, and then overlays OKTO_* environment variables on
// DefaultConfig. Credentials are not checked here; see Validate.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Kind: KindConfiguration, Message: "failed to load env file: " + err.Error(), Err: err}
	}

	cfg := DefaultConfig()
	cfg.ClientSWA = lookupEnv(EnvClientSWA)
	cfg.ClientPrivateKey = lookupEnv(EnvClientPrivateKey)

	if v := lookupEnv(EnvEntryPoint); v != "" {
		if !common.IsHexAddress(v) {
			return nil, configError(EnvEntryPoint, ErrInvalidAddress)
		}
		cfg.EntryPoint = common.HexToAddress(v)
	}
	if v := lookupEnv(EnvPaymaster); v != "" {
		if !common.IsHexAddress(v) {
			return nil, configError(EnvPaymaster, ErrInvalidAddress)
		}
		cfg.PaymasterAddress = common.HexToAddress(v)
	}
	if v := lookupEnv(EnvChainID); v != "" {
		id, err := cast.ToInt64E(v)
		if err != nil || id <= 0 {
			return nil, configError(EnvChainID, ErrInvalidChainID)
		}
		cfg.ChainID = big.NewInt(id)
	}
	if v := lookupEnv(EnvBaseURL); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}

	for name, target := range map[string]*time.Duration{
		EnvTokenTTL:               &cfg.TokenTTL,
		EnvSponsorshipTTL:         &cfg.SponsorshipTTL,
		EnvTransferSponsorshipTTL: &cfg.TransferSponsorshipTTL,
	} {
		v := lookupEnv(name)
		if v == "" {
			continue
		}
		d, err := parseTTL(v)
		if err != nil {
			return nil, configError(name, err)
		}
		*target = d
	}

	return cfg, nil
}

// Validate reports the first missing or malformed client credential.
func (c *Config) Validate() error {
	if c.ClientSWA == "" {
		return configError(EnvClientSWA, ErrMissingClientSWA)
	}
	if !common.IsHexAddress(c.ClientSWA) {
		return configError(EnvClientSWA, ErrInvalidAddress)
	}
	if c.ClientPrivateKey == "" {
		return configError(EnvClientPrivateKey, ErrMissingClientKey)
	}
	if _, err := NewKeySigner(c.ClientPrivateKey); err != nil {
		return configError(EnvClientPrivateKey, ErrInvalidPrivateKey)
	}
	return nil
}

// ClientSigner returns the signer for the configured client key.
func (c *Config) ClientSigner() (Signer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return NewKeySigner(c.ClientPrivateKey)
}

// parseTTL accepts either a number of seconds or a Go duration string.
func parseTTL(v string) (time.Duration, error) {
	if secs, err := cast.ToInt64E(v); err == nil {
		if secs <= 0 {
			return 0, ErrInvalidNumeric
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := cast.ToDurationE(v)
	if err != nil || d <= 0 {
		return 0, ErrInvalidNumeric
	}
	return d, nil
}

func lookupEnv(name string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	if fallback, ok := envFallbacks[name]; ok {
		return strings.TrimSpace(os.Getenv(fallback))
	}
	return ""
}

func configError(name string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: name + ": " + err.Error(), Err: err}
}
