package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/openshift-pipelines/index-info/pkg/resolver"
)

// MirrorPolicyConfig lists the ICSP or IDMS files to load. Both kinds may be
// mixed.
type MirrorPolicyConfig struct {
	Files []string
}

// MirrorPolicyLoader loads the configured policies into a resolver
type MirrorPolicyLoader struct {
	config MirrorPolicyConfig
}

// NewMirrorPolicyLoader creates a new MirrorPolicyLoader with the given configuration
func NewMirrorPolicyLoader(config MirrorPolicyConfig) *MirrorPolicyLoader {
	return &MirrorPolicyLoader{config: config}
}

// LoadIntoResolver loads every configured policy into imageResolver.
func (mpl *MirrorPolicyLoader) LoadIntoResolver(imageResolver *resolver.ImageResolver) error {
	for _, file := range mpl.config.Files {
		if err := imageResolver.LoadMirrorPolicy(file); err != nil {
			return fmt.Errorf("failed to load mirror policy: %w", err)
		}
	}
	return nil
}

// Resolver builds an ImageResolver from the configured policies, or returns
// nil when none are configured.
func (mpl *MirrorPolicyLoader) Resolver() (*resolver.ImageResolver, error) {
	if !mpl.HasMirrorPolicy() {
		return nil, nil
	}
	imageResolver := resolver.NewImageResolver()
	if err := mpl.LoadIntoResolver(imageResolver); err != nil {
		return nil, err
	}
	return imageResolver, nil
}

// HasMirrorPolicy returns true if any mirror policy is configured
func (mpl *MirrorPolicyLoader) HasMirrorPolicy() bool {
	return len(mpl.config.Files) > 0
}

// Validate checks that every configured file exists and is a regular file.
func (mpl *MirrorPolicyLoader) Validate() error {
	for _, file := range mpl.config.Files {
		fi, err := os.Stat(file)
		if err != nil {
			return fmt.Errorf("mirror policy %s: %w", file, err)
		}
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("mirror policy %s is not a regular file", file)
		}
	}
	return nil
}

// GetDescription returns a human-readable description of the loaded policies
func (mpl *MirrorPolicyLoader) GetDescription() string {
	switch len(mpl.config.Files) {
	case 0:
		return "no mirror policy"
	case 1:
		return fmt.Sprintf("mirror policy: %s", mpl.config.Files[0])
	default:
		return fmt.Sprintf("mirror policies: %s", strings.Join(mpl.config.Files, ", "))
	}
}
