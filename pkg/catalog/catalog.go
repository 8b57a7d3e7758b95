// Package catalog reads the file-based catalog shipped in an OLM index image
// and answers the questions needed to pick a bundle: which channels exist,
// which bundles a channel lists and which images a bundle relates to.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/operator-framework/operator-registry/alpha/declcfg"
	"github.com/operator-framework/operator-registry/alpha/property"
	"k8s.io/apimachinery/pkg/util/sets"
)

// DefaultPackage is the operator package whose catalog is inspected by default.
const DefaultPackage = "openshift-pipelines-operator-rh"

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrBundleNotFound  = errors.New("bundle not found")
	ErrAmbiguousBundle = errors.New("ambiguous bundle name")
)

// Path returns the location of the catalog of pkg inside an index image.
func Path(pkg string) string {
	return fmt.Sprintf("/configs/%s/catalog.json", pkg)
}

// Catalog holds the channel and bundle records of a catalog document.
type Catalog struct {
	channels []declcfg.Channel
	bundles  []declcfg.Bundle
}

// Load parses a stream of catalog records. Records with schemas other than
// olm.channel and olm.bundle are skipped.
func Load(r io.Reader) (*Catalog, error) {
	c := &Catalog{}
	err := declcfg.WalkMetasReader(r, func(meta *declcfg.Meta, err error) error {
		if err != nil {
			return err
		}
		switch meta.Schema {
		case declcfg.SchemaChannel:
			var ch declcfg.Channel
			if err := json.Unmarshal(meta.Blob, &ch); err != nil {
				return fmt.Errorf("failed to parse channel %q: %w", meta.Name, err)
			}
			c.channels = append(c.channels, ch)
		case declcfg.SchemaBundle:
			var b declcfg.Bundle
			if err := json.Unmarshal(meta.Blob, &b); err != nil {
				return fmt.Errorf("failed to parse bundle %q: %w", meta.Name, err)
			}
			c.bundles = append(c.bundles, b)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return c, nil
}

// LoadBytes is Load over an in-memory document.
func LoadBytes(data []byte) (*Catalog, error) {
	return Load(bytes.NewReader(data))
}

// ChannelNames returns the distinct channel names in the order they first
// appear in the document.
func (c *Catalog) ChannelNames() []string {
	seen := sets.New[string]()
	var names []string
	for _, ch := range c.channels {
		if seen.Has(ch.Name) {
			continue
		}
		seen.Insert(ch.Name)
		names = append(names, ch.Name)
	}
	return names
}

// Entries returns the bundle names of a channel in array order.
func (c *Catalog) Entries(channel string) ([]string, error) {
	for _, ch := range c.channels {
		if ch.Name != channel {
			continue
		}
		names := make([]string, 0, len(ch.Entries))
		for _, e := range ch.Entries {
			names = append(names, e.Name)
		}
		return names, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channel)
}

// Bundle returns the bundle with exactly the given name.
func (c *Catalog) Bundle(name string) (*Bundle, error) {
	for i := range c.bundles {
		if c.bundles[i].Name == name {
			return &Bundle{record: c.bundles[i]}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, name)
}

// FindBundle returns the only bundle whose name starts with prefix.
func (c *Catalog) FindBundle(prefix string) (*Bundle, error) {
	var matches []int
	for i := range c.bundles {
		if strings.HasPrefix(c.bundles[i].Name, prefix) {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: no bundle named %s, bundles: %v", ErrBundleNotFound, prefix, c.BundleNames())
	case 1:
		return &Bundle{record: c.bundles[matches[0]]}, nil
	default:
		return nil, fmt.Errorf("%w: %s matches %d bundles", ErrAmbiguousBundle, prefix, len(matches))
	}
}

// BundleNames returns the names of all bundles in document order.
func (c *Catalog) BundleNames() []string {
	names := make([]string, 0, len(c.bundles))
	for _, b := range c.bundles {
		names = append(names, b.Name)
	}
	return names
}

// Bundle is a single olm.bundle record.
type Bundle struct {
	record declcfg.Bundle
}

func (b *Bundle) Name() string {
	return b.record.Name
}

func (b *Bundle) Package() string {
	return b.record.Package
}

func (b *Bundle) Image() string {
	return b.record.Image
}

// Version returns the version of the bundle's own olm.package property. It
// is empty when the bundle carries none, or more than one, for its package.
func (b *Bundle) Version() string {
	var versions []string
	for _, p := range b.record.Properties {
		if p.Type != property.TypePackage {
			continue
		}
		var pkg property.Package
		if err := json.Unmarshal(p.Value, &pkg); err != nil {
			continue
		}
		if b.record.Package != "" && pkg.PackageName != b.record.Package {
			continue
		}
		versions = append(versions, pkg.Version)
	}
	if len(versions) != 1 {
		return ""
	}
	return versions[0]
}

// RelatedImages returns the distinct, non-empty related image references of
// the bundle sorted lexicographically.
func (b *Bundle) RelatedImages() []string {
	images := sets.New[string]()
	for _, ri := range b.record.RelatedImages {
		if ri.Image != "" {
			images.Insert(ri.Image)
		}
	}
	return sets.List(images)
}

// Manifests returns the Kubernetes manifests embedded in the bundle's
// olm.bundle.object properties. Undecodable properties are skipped.
func (b *Bundle) Manifests() [][]byte {
	var manifests [][]byte
	for _, p := range b.record.Properties {
		if p.Type != property.TypeBundleObject {
			continue
		}
		var obj struct {
			Data []byte `json:"data"`
		}
		if err := json.Unmarshal(p.Value, &obj); err != nil || len(obj.Data) == 0 {
			continue
		}
		manifests = append(manifests, obj.Data)
	}
	return manifests
}
