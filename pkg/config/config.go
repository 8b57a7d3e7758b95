package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openshift-pipelines/index-info/pkg/catalog"
	"github.com/openshift-pipelines/index-info/pkg/metadata"
)

// Config holds the settings shared by every command. Values come from the
// defaults, then an optional YAML file, then command line flags.
type Config struct {
	// Namespace is the registry prefix of images whose metadata is read.
	Namespace string `yaml:"namespace"`
	// Package is the operator package whose catalog is read from the index.
	Package string `yaml:"package"`
	// CatalogPath overrides the catalog location derived from Package.
	CatalogPath string `yaml:"catalogPath,omitempty"`
	// Parallelism bounds concurrent image lookups.
	Parallelism int `yaml:"parallelism"`
	// MirrorPolicy lists ICSP/IDMS files used to rewrite pull references.
	MirrorPolicy []string `yaml:"mirrorPolicy,omitempty"`
	// Provenance enables the SLSA attestation fallback for downstream commits.
	Provenance bool `yaml:"provenance"`
	// ProvenanceTimeout bounds the attestation lookup of one image. Zero
	// keeps the parser default.
	ProvenanceTimeout time.Duration `yaml:"provenanceTimeout,omitempty"`
	// ProvenanceMaxAttestations caps the attestations read per image. Zero
	// keeps the parser default.
	ProvenanceMaxAttestations int `yaml:"provenanceMaxAttestations,omitempty"`
	// TLSVerify controls registry certificate verification.
	TLSVerify bool `yaml:"tlsVerify"`
	// Repositories adds to or overrides the short name to upstream repository table.
	Repositories map[string]string `yaml:"repositories,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Namespace:   metadata.DefaultNamespace,
		Package:     catalog.DefaultPackage,
		Parallelism: metadata.DefaultParallelism,
		TLSVerify:   true,
	}
}

// Load reads path and overlays it on the defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values no command can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Namespace == "" {
		errs = append(errs, errors.New("namespace must not be empty"))
	}
	if c.Package == "" && c.CatalogPath == "" {
		errs = append(errs, errors.New("package must not be empty"))
	}
	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism must be positive, got %d", c.Parallelism))
	}
	if c.ProvenanceTimeout < 0 {
		errs = append(errs, fmt.Errorf("provenanceTimeout must not be negative, got %s", c.ProvenanceTimeout))
	}
	if c.ProvenanceMaxAttestations < 0 {
		errs = append(errs, fmt.Errorf("provenanceMaxAttestations must not be negative, got %d", c.ProvenanceMaxAttestations))
	}
	if err := c.MirrorPolicyLoader().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Catalog returns the path of the catalog document inside the index image.
func (c Config) Catalog() string {
	if c.CatalogPath != "" {
		return c.CatalogPath
	}
	return catalog.Path(c.Package)
}

// MirrorPolicyLoader returns a loader for the configured mirror policies.
func (c Config) MirrorPolicyLoader() *MirrorPolicyLoader {
	return NewMirrorPolicyLoader(MirrorPolicyConfig{Files: c.MirrorPolicy})
}

// RepositoryTable builds the repository table with the configured overrides.
func (c Config) RepositoryTable() metadata.RepositoryTable {
	return metadata.NewRepositoryTable(c.Repositories)
}
