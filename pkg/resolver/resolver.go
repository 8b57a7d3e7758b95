package resolver

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/containers/image/v5/docker/reference"
	"gopkg.in/yaml.v3"
)

// ImageContentSourcePolicy represents the ICSP structure
type ImageContentSourcePolicy struct {
	APIVersion string                       `yaml:"apiVersion"`
	Kind       string                       `yaml:"kind"`
	Metadata   map[string]interface{}       `yaml:"metadata"`
	Spec       ImageContentSourcePolicySpec `yaml:"spec"`
}

type ImageContentSourcePolicySpec struct {
	RepositoryDigestMirrors []Mirror `yaml:"repositoryDigestMirrors"`
}

// ImageDigestMirrorSet represents the IDMS structure (newer OpenShift versions)
type ImageDigestMirrorSet struct {
	APIVersion string                   `yaml:"apiVersion"`
	Kind       string                   `yaml:"kind"`
	Metadata   map[string]interface{}   `yaml:"metadata"`
	Spec       ImageDigestMirrorSetSpec `yaml:"spec"`
}

type ImageDigestMirrorSetSpec struct {
	ImageDigestMirrors []Mirror `yaml:"imageDigestMirrors"`
}

// Mirror maps a source registry or repository to the places it is mirrored to.
type Mirror struct {
	Source  string   `yaml:"source"`
	Mirrors []string `yaml:"mirrors"`
}

// ImageResolver maps image references to their pull location using the
// mirrors of the loaded ICSP/IDMS policies. Only the first mirror of an
// entry is used.
type ImageResolver struct {
	mirrors  []Mirror
	policies int
}

// NewImageResolver creates an ImageResolver without policies; it resolves
// every reference to itself.
func NewImageResolver() *ImageResolver {
	return &ImageResolver{}
}

// LoadMirrorPolicy loads either ICSP or IDMS from a YAML file by auto-detecting the format
func (ir *ImageResolver) LoadMirrorPolicy(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read mirror policy file %s: %w", filePath, err)
	}

	var kindCheck struct {
		Kind string `yaml:"kind"`
	}
	if err := yaml.Unmarshal(data, &kindCheck); err != nil {
		return fmt.Errorf("failed to parse YAML from %s: %w", filePath, err)
	}

	var mirrors []Mirror
	switch kindCheck.Kind {
	case "ImageContentSourcePolicy":
		var icsp ImageContentSourcePolicy
		if err := yaml.Unmarshal(data, &icsp); err != nil {
			return fmt.Errorf("failed to unmarshal ICSP from %s: %w", filePath, err)
		}
		mirrors = icsp.Spec.RepositoryDigestMirrors
	case "ImageDigestMirrorSet":
		var idms ImageDigestMirrorSet
		if err := yaml.Unmarshal(data, &idms); err != nil {
			return fmt.Errorf("failed to unmarshal IDMS from %s: %w", filePath, err)
		}
		mirrors = idms.Spec.ImageDigestMirrors
	default:
		return fmt.Errorf("unsupported mirror policy kind in %s: %s (expected ImageContentSourcePolicy or ImageDigestMirrorSet)", filePath, kindCheck.Kind)
	}

	ir.AddMirrors(mirrors...)
	ir.policies++
	return nil
}

// AddMirrors registers mirror entries directly. Entries without mirrors are
// ignored.
func (ir *ImageResolver) AddMirrors(mirrors ...Mirror) {
	for _, m := range mirrors {
		if m.Source == "" || len(m.Mirrors) == 0 || m.Mirrors[0] == "" {
			continue
		}
		m.Source = strings.TrimSuffix(m.Source, "/")
		ir.mirrors = append(ir.mirrors, m)
	}
	// Longest source first so the most specific entry wins.
	sort.SliceStable(ir.mirrors, func(i, j int) bool {
		return len(ir.mirrors[i].Source) > len(ir.mirrors[j].Source)
	})
}

// Resolve returns the pull location of image. Tags and digests are kept.
// References that cannot be parsed, or that no mirror covers, are returned
// unchanged.
func (ir *ImageResolver) Resolve(image string) string {
	if len(ir.mirrors) == 0 {
		return image
	}

	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return image
	}
	repo := named.Name()

	for _, m := range ir.mirrors {
		remainder, ok := matchSource(repo, m.Source)
		if !ok {
			continue
		}
		return strings.TrimSuffix(m.Mirrors[0], "/") + remainder + suffix(named)
	}
	return image
}

// matchSource matches repo against a registry or repository source on path
// boundaries: registry.redhat.io covers registry.redhat.io/ubi8/ubi but not
// registry.redhat.io.evil.com/ubi8/ubi.
func matchSource(repo, source string) (string, bool) {
	if repo == source {
		return "", true
	}
	if strings.HasPrefix(repo, source+"/") {
		return repo[len(source):], true
	}
	return "", false
}

func suffix(named reference.Named) string {
	if digested, ok := named.(reference.Digested); ok {
		return "@" + digested.Digest().String()
	}
	if tagged, ok := named.(reference.Tagged); ok {
		return ":" + tagged.Tag()
	}
	return ""
}

// MirrorStats represents statistics about loaded mirror policies
type MirrorStats struct {
	TotalPolicies int
	TotalMirrors  int
}

// GetMirrorStats returns statistics about loaded mirror policies
func (ir *ImageResolver) GetMirrorStats() MirrorStats {
	return MirrorStats{
		TotalPolicies: ir.policies,
		TotalMirrors:  len(ir.mirrors),
	}
}
