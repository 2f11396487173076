package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// BrokerConfig holds everything specific to the credential broker: the
// discovery port range, how long a registration call may block waiting for
// the user's grant decision, and the JWT secret lifetime.
type BrokerConfig interface {
	GetBasePort() int
	GetPortRangeSize() int
	GetGrantTimeout() time.Duration
	GetTokenExpiry() time.Duration
}

const (
	defaultBasePort      = 18320
	defaultPortRangeSize = 10
	defaultGrantTimeout  = 60 * time.Second
	defaultTokenExpiry   = 30 * 24 * time.Hour
)

type Broker struct{}

var _ BrokerConfig = Broker{}

// brokerFile is the optional on-disk config, read once. Env vars win over
// the file, the file wins over defaults.
type brokerFile struct {
	BasePort     int    `yaml:"basePort"`
	PortRange    int    `yaml:"portRange"`
	GrantTimeout string `yaml:"grantTimeout"`
	TokenExpiry  string `yaml:"tokenExpiry"`
}

var fileConfig = loadBrokerFile()

func loadBrokerFile() brokerFile {
	var f brokerFile
	path := filepath.Join(EnvVars{}.GetDataFolder(), "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return f
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return brokerFile{}
	}
	return f
}

func (Broker) GetBasePort() int {
	if v, err := strconv.Atoi(os.Getenv("OMNIKEY_BASE_PORT")); err == nil && v > 0 {
		return v
	}
	if fileConfig.BasePort > 0 {
		return fileConfig.BasePort
	}
	return defaultBasePort
}

func (Broker) GetPortRangeSize() int {
	if fileConfig.PortRange > 0 {
		return fileConfig.PortRange
	}
	return defaultPortRangeSize
}

func (Broker) GetGrantTimeout() time.Duration {
	if d, err := time.ParseDuration(os.Getenv("OMNIKEY_GRANT_TIMEOUT")); err == nil && d > 0 {
		return d
	}
	if d, err := time.ParseDuration(fileConfig.GrantTimeout); err == nil && d > 0 {
		return d
	}
	return defaultGrantTimeout
}

func (Broker) GetTokenExpiry() time.Duration {
	if d, err := time.ParseDuration(fileConfig.TokenExpiry); err == nil && d > 0 {
		return d
	}
	return defaultTokenExpiry
}
