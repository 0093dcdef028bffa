package behavior

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromBytes parses a single rule set from YAML. Keys absent from the document keep
// their Default() values, so a file naming only `name:` yields an attackable,
// mid-scale creature.
//
// Postcondition: Returns a validated Config with a lowercase Name, or an error.
func LoadFromBytes(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing behavior YAML: %w", err)
	}
	cfg.Name = Key(cfg.Name)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDir reads every *.yaml file in dir.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all valid configs. Files that fail to read, parse or validate
// are skipped and reported together in the returned error; a non-nil error therefore
// does not mean the returned slice is empty.
func LoadDir(dir string) ([]Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading behavior dir %q: %w", dir, err)
	}

	var (
		configs []Config
		errs    []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %q: %w", path, err))
			continue
		}
		cfg, err := LoadFromBytes(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("loading %q: %w", path, err))
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, errors.Join(errs...)
}
