package config

import (
	"log"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the tunable parameters of the whole stack. All durations are
// in milliseconds because time only advances through explicit Tick calls.
type Config struct {
	StreamCapacity  int  `yaml:"streamCapacity"`  // capacity of each direction's byte stream in bytes
	InitialRTO      int  `yaml:"initialRTO"`      // initial retransmission timeout in ms
	MaxRetxAttempts int  `yaml:"maxRetxAttempts"` // consecutive retransmissions before the connection aborts
	PayloadPoolSize int  `yaml:"payloadPoolSize"` // number of payload chunks in the ring pool, 0 disables pooling
	ArpWaitTime     int  `yaml:"arpWaitTime"`     // ms between ARP requests for the same next hop
	ArpStaleTime    int  `yaml:"arpStaleTime"`    // ms a learned ARP mapping stays valid
	Debug           bool `yaml:"debug"`           // verbose logging in demo programs
}

func DefaultConfig() *Config {
	return &Config{
		StreamCapacity:  64 * 1024,
		InitialRTO:      1000,
		MaxRetxAttempts: 8,
		PayloadPoolSize: 2000,
		ArpWaitTime:     5000,
		ArpStaleTime:    30000,
		Debug:           false,
	}
}

// LoadConfig reads a yaml config file. Fields missing from the file keep
// their default values.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}

	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", path)
	}

	if conf.StreamCapacity <= 0 {
		return nil, errors.Errorf("streamCapacity must be positive, got %d", conf.StreamCapacity)
	}
	if conf.InitialRTO <= 0 {
		return nil, errors.Errorf("initialRTO must be positive, got %d", conf.InitialRTO)
	}

	if conf.Debug {
		log.Printf("loaded config from %s: %+v", path, *conf)
	}

	return conf, nil
}
