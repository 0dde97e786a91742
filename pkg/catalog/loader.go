package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/morezero/flow-functions/pkg/trigger"
)

const logPrefix = "catalog:loader"

// Load reads and validates a catalog. Files ending in .json are decoded as
// JSON; everything else as YAML.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read catalog %s: %w", logPrefix, path, err)
	}

	cat, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("%s - %s: %w", logPrefix, path, err)
	}

	slog.Info(fmt.Sprintf("%s - Loaded %d flows from %s", logPrefix, len(cat.Flows), path))
	return cat, nil
}

// Parse decodes and validates catalog data.
func Parse(data []byte, isJSON bool) (*Catalog, error) {
	var cat Catalog
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cat); err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cat); err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate rejects unnamed or duplicate flows and invalid auth levels.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Flows))
	for i, e := range c.Flows {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("flow #%d has no name", i+1)
		}
		if seen[e.Name] {
			return fmt.Errorf("flow %s is listed more than once", e.Name)
		}
		seen[e.Name] = true

		if _, err := trigger.ParseAuthLevel(e.AuthLevel); err != nil {
			return fmt.Errorf("flow %s: %w", e.Name, err)
		}
		if e.TimeoutMs < 0 {
			return fmt.Errorf("flow %s: timeoutMs must not be negative", e.Name)
		}
	}
	return nil
}

// Get returns the entry for name, or nil.
func (c *Catalog) Get(name string) *Entry {
	for i := range c.Flows {
		if c.Flows[i].Name == name {
			return &c.Flows[i]
		}
	}
	return nil
}

// NeedsKeyStore reports whether any flow validates against the key store.
func (c *Catalog) NeedsKeyStore() bool {
	for i := range c.Flows {
		if c.Flows[i].Auth.NeedsKeyStore() {
			return true
		}
	}
	return false
}
