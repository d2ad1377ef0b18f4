package docql

import (
	"encoding/json"

	"github.com/stratumdb/docql/errors"
	"github.com/stratumdb/docql/util"
)

// ContainerConfig identifies a container and carries bulk execution defaults
type ContainerConfig struct {
	// Database is the database id
	Database string `json:"database" validate:"required"`
	// Container is the container id
	Container string `json:"container" validate:"required"`
	// PartitionKeyPath is the path of the containers partition key field, e.g. /tenantId
	PartitionKeyPath string `json:"partition_key_path"`
	// BatchSize is the default bulk batch size (default 50)
	BatchSize int `json:"batch_size"`
	// MaxConcurrency is the default number of batches in flight at once (default 5)
	MaxConcurrency int `json:"max_concurrency"`
	// MaxAttempts is the default retry bound per document operation (default 3)
	MaxAttempts int `json:"max_attempts"`
}

// ContainerConfigFromBytes parses a container config from yaml or json bytes,
// applies defaults and validates it
func ContainerConfigFromBytes(bits []byte) (ContainerConfig, error) {
	var cfg ContainerConfig
	jsonBits, err := util.YAMLToJSON(bits)
	if err != nil {
		return cfg, errors.Wrap(err, errors.Validation, "failed to parse container config")
	}
	if err := json.Unmarshal(jsonBits, &cfg); err != nil {
		return cfg, errors.Wrap(err, errors.Validation, "failed to parse container config")
	}
	cfg.applyDefaults()
	if err := util.ValidateStruct(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *ContainerConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
}
