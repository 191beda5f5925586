// Package manifest reads YAML files listing the upload batches a run should
// wait for.
//
// Example manifest:
//
//	poll:
//	  max_attempts: 7
//	  base_delay: 1s
//	concurrency: 4
//
//	batches:
//	  - name: handbook
//	    dataset_id: ${DATASET_ID}
//	    batch: "20250101000000123456"
//	  - dataset_id: 8f1c2d3e-0000-4000-8000-000000000001
//	    batch: "20250101000000654321"
package manifest

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/Alwanly/dify-indexing-watch/pkg/poll"
	"gopkg.in/yaml.v3"
)

// Manifest is the root of a manifest file.
type Manifest struct {
	// Poll overrides the environment's poll settings for every batch.
	Poll PollOverride `yaml:"poll"`

	// Concurrency caps how many batches are polled at once. Zero leaves the
	// choice to the caller.
	Concurrency int `yaml:"concurrency"`

	Batches []Entry `yaml:"batches"`
}

// PollOverride holds optional poll settings. Zero fields keep the defaults.
type PollOverride struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
}

// Entry is one batch to wait for.
type Entry struct {
	// Name is a display label; it defaults to "<dataset_id>/<batch>".
	Name      string `yaml:"name"`
	DatasetID string `yaml:"dataset_id"`
	Batch     string `yaml:"batch"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses manifest YAML, expands ${VAR} and ${VAR:-default} in ids and
// validates the result.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := m.expandAndValidate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// PollConfig applies the manifest's overrides on top of defaults.
func (m *Manifest) PollConfig(defaults poll.Config) (poll.Config, error) {
	cfg := defaults
	if m.Poll.MaxAttempts != 0 {
		cfg.MaxAttempts = m.Poll.MaxAttempts
	}
	if m.Poll.BaseDelay != 0 {
		cfg.BaseDelay = m.Poll.BaseDelay.Duration()
	}
	if err := cfg.Validate(); err != nil {
		return poll.Config{}, fmt.Errorf("poll: %w", err)
	}
	return cfg, nil
}

func (m *Manifest) expandAndValidate() error {
	if m.Poll.MaxAttempts < 0 {
		return fmt.Errorf("poll.max_attempts must not be negative, got %d", m.Poll.MaxAttempts)
	}
	if m.Poll.BaseDelay < 0 {
		return fmt.Errorf("poll.base_delay must not be negative, got %s", m.Poll.BaseDelay.Duration())
	}
	if m.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", m.Concurrency)
	}
	if len(m.Batches) == 0 {
		return errors.New("batches: at least one batch is required")
	}

	seen := make(map[string]int, len(m.Batches))
	for i := range m.Batches {
		e := &m.Batches[i]

		var err error
		if e.DatasetID, err = expandEnvVars(e.DatasetID); err != nil {
			return fmt.Errorf("batches[%d]: dataset_id: %w", i, err)
		}
		if e.Batch, err = expandEnvVars(e.Batch); err != nil {
			return fmt.Errorf("batches[%d]: batch: %w", i, err)
		}

		if e.DatasetID == "" {
			return fmt.Errorf("batches[%d]: dataset_id is required", i)
		}
		if e.Batch == "" {
			return fmt.Errorf("batches[%d]: batch is required", i)
		}
		if e.Name == "" {
			e.Name = e.DatasetID + "/" + e.Batch
		}

		key := e.DatasetID + "\x00" + e.Batch
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("batches[%d]: duplicate of batches[%d] (%s)", i, prev, e.Name)
		}
		seen[key] = i
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default}; an unset variable
// without a default is an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := envVarPattern.FindStringSubmatch(match)
		name, hasDefault, def := sub[1], sub[2] != "", sub[3]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return def
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
