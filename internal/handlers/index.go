package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/openshift-pipelines/index-info/pkg/bundle"
	"github.com/openshift-pipelines/index-info/pkg/catalog"
	"github.com/openshift-pipelines/index-info/pkg/image"
	"github.com/openshift-pipelines/index-info/pkg/selector"
)

// Selection names the bundle to inspect. Empty fields are chosen
// interactively.
type Selection struct {
	Channel string
	// Bundle is a bundle name. Without a channel it may also be a name
	// prefix, with or without the "<package>." part.
	Bundle string
}

// Index reads the catalog of an index image and picks a bundle out of it.
type Index struct {
	source      image.Source
	selector    selector.Selector
	pkg         string
	catalogPath string
	log         logrus.FieldLogger
}

// NewIndex creates an Index reading the catalog of pkg at catalogPath.
func NewIndex(source image.Source, sel selector.Selector, pkg, catalogPath string, log logrus.FieldLogger) *Index {
	if catalogPath == "" {
		catalogPath = catalog.Path(pkg)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Index{
		source:      source,
		selector:    sel,
		pkg:         pkg,
		catalogPath: catalogPath,
		log:         log,
	}
}

// Catalog fetches and parses the catalog of the index image ref.
func (ix *Index) Catalog(ctx context.Context, ref string) (*catalog.Catalog, error) {
	if err := image.Validate(ref); err != nil {
		return nil, fmt.Errorf("invalid index image: %w", err)
	}

	img, err := ix.source.Open(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to open index image %s: %w", ref, err)
	}
	defer func() {
		if err := img.Close(); err != nil {
			ix.log.WithError(err).Debug("failed to close index image")
		}
	}()

	data, err := img.ReadFile(ctx, ix.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %s: %w", ix.catalogPath, ref, err)
	}
	ix.log.WithField("image", ref).Debugf("read %d bytes of catalog", len(data))

	return catalog.LoadBytes(data)
}

// SelectBundle picks the bundle named by sel, asking for whatever sel leaves
// open. A channel listing a single bundle selects it without asking.
func (ix *Index) SelectBundle(cat *catalog.Catalog, sel Selection) (*catalog.Bundle, error) {
	if sel.Bundle != "" && sel.Channel == "" {
		return ix.findBundle(cat, sel.Bundle)
	}

	channels := cat.ChannelNames()
	channel, err := ix.pick("Select a channel", sel.Channel, channels)
	if err != nil {
		if errors.Is(err, selector.ErrNotAnOption) {
			return nil, fmt.Errorf("%w: %s", catalog.ErrChannelNotFound, sel.Channel)
		}
		return nil, err
	}
	if sel.Channel == "" && len(channels) == 1 {
		ix.log.Infof("using channel %s, the only one in the catalog", channel)
	}

	entries, err := cat.Entries(channel)
	if err != nil {
		return nil, err
	}

	name, err := ix.pick(fmt.Sprintf("Select a bundle from %s", channel), sel.Bundle, entries)
	if err != nil {
		if errors.Is(err, selector.ErrNotAnOption) {
			return nil, fmt.Errorf("%w: %s is not in channel %s", catalog.ErrBundleNotFound, sel.Bundle, channel)
		}
		return nil, err
	}

	ix.log.Debugf("selected bundle %s from channel %s", name, channel)
	return cat.Bundle(name)
}

// pick returns value when it was given on the command line and asks the
// selector otherwise.
func (ix *Index) pick(prompt, value string, options []string) (string, error) {
	if value != "" {
		return selector.Static{Value: value}.Select(prompt, options)
	}
	return selector.Choose(ix.selector, prompt, options)
}

func (ix *Index) findBundle(cat *catalog.Catalog, name string) (*catalog.Bundle, error) {
	if b, err := cat.Bundle(name); err == nil {
		return b, nil
	}
	b, err := cat.FindBundle(name)
	if errors.Is(err, catalog.ErrBundleNotFound) && ix.pkg != "" && !strings.HasPrefix(name, ix.pkg+".") {
		if qualified, qerr := cat.FindBundle(ix.pkg + "." + name); qerr == nil {
			return qualified, nil
		}
	}
	return b, err
}

// BundleImages returns the related images of b. Bundles without a
// relatedImages list fall back to the images referenced by their embedded
// ClusterServiceVersion.
func (ix *Index) BundleImages(b *catalog.Bundle) ([]string, error) {
	images := b.RelatedImages()
	if len(images) > 0 {
		return images, nil
	}

	ix.log.WithField("bundle", b.Name()).Debug("no relatedImages, reading the bundle manifests")
	images, err := bundle.PullSpecs(b.Manifests())
	if err != nil {
		return nil, fmt.Errorf("failed to read images of bundle %s: %w", b.Name(), err)
	}
	return images, nil
}
