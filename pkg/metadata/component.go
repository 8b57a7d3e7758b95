// Package metadata resolves where the code in a component image came from:
// the downstream commit it was built from and the upstream commit it ships.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/openshift-pipelines/index-info/pkg/image"
)

const (
	// DefaultNamespace is the registry namespace holding the images built
	// by the pipelines team. Images elsewhere are listed without metadata.
	DefaultNamespace = "quay.io/openshift-pipeline/"

	LabelDownstreamCommit = "vcs-ref"
	LabelUpstreamCommit   = "upstream-vcs-ref"

	// UpstreamHeadPath holds the upstream commit baked into ko built images.
	UpstreamHeadPath = "/kodata/HEAD"

	DefaultParallelism = 4
)

// Component is the resolved provenance of a single related image.
type Component struct {
	// Image is the reference as listed by the bundle.
	Image string
	// PullRef is the reference metadata was read from. It differs from
	// Image when a mirror policy applies.
	PullRef   string
	ShortName string
	RepoKey   string

	DownstreamCommit string
	UpstreamCommit   string
	UpstreamRepo     string
	SourceRepo       string

	// Err records the non-fatal failure that left the component without
	// (part of) its metadata.
	Err error
}

// NewComponent returns the Component of ref without any metadata.
func NewComponent(ref string) Component {
	return Component{
		Image:     ref,
		PullRef:   ref,
		ShortName: image.ShortName(ref),
		RepoKey:   image.RepoKey(ref),
	}
}

// GitLink returns the upstream commit URL, or "" when either the upstream
// repository or the commit is unknown.
func (c Component) GitLink() string {
	if c.UpstreamRepo == "" || c.UpstreamCommit == "" {
		return ""
	}
	return fmt.Sprintf("https://github.com/%s/commit/%s", c.UpstreamRepo, c.UpstreamCommit)
}

// UpstreamRef is the commit URL when one can be built, the raw hash otherwise.
func (c Component) UpstreamRef() string {
	if link := c.GitLink(); link != "" {
		return link
	}
	return c.UpstreamCommit
}

// HasMetadata reports whether any commit was found.
func (c Component) HasMetadata() bool {
	return c.DownstreamCommit != "" || c.UpstreamCommit != ""
}

// ProvenanceLookup finds the source of an image from its build attestations.
type ProvenanceLookup interface {
	SourceCommit(ctx context.Context, ref string) (repo, commit string, err error)
}

// Mirrors maps an image reference to the location it should be pulled from.
type Mirrors interface {
	Resolve(image string) string
}

// Resolver resolves Components. It is safe for concurrent use.
type Resolver struct {
	source      image.Source
	table       RepositoryTable
	namespace   string
	parallelism int
	provenance  ProvenanceLookup
	mirrors     Mirrors
	log         logrus.FieldLogger
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithNamespace(namespace string) Option {
	return func(r *Resolver) {
		r.namespace = namespace
	}
}

// WithParallelism bounds how many images are resolved at once. One keeps
// the resolution strictly sequential.
func WithParallelism(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

func WithProvenance(p ProvenanceLookup) Option {
	return func(r *Resolver) {
		r.provenance = p
	}
}

func WithMirrors(m Mirrors) Option {
	return func(r *Resolver) {
		r.mirrors = m
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Resolver) {
		r.log = log
	}
}

func NewResolver(source image.Source, table RepositoryTable, opts ...Option) *Resolver {
	r := &Resolver{
		source:      source,
		table:       table,
		namespace:   DefaultNamespace,
		parallelism: DefaultParallelism,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve gathers the metadata of a single image. Failures never escape: they
// are logged and recorded in Component.Err, leaving the fields that could not
// be read empty.
func (r *Resolver) Resolve(ctx context.Context, ref string) Component {
	c := NewComponent(ref)
	c.UpstreamRepo, _ = r.table.Lookup(c.RepoKey)
	if r.mirrors != nil {
		c.PullRef = r.mirrors.Resolve(ref)
	}

	log := r.log.WithField("image", c.PullRef)
	if !image.HasNamespace(c.PullRef, r.namespace) {
		log.Debugf("not in %s, skipping metadata", r.namespace)
		return c
	}

	img, err := r.source.Open(ctx, c.PullRef)
	if err != nil {
		log.WithError(err).Warn("failed to fetch image")
		c.Err = err
		return c
	}
	defer func() {
		if err := img.Close(); err != nil {
			log.WithError(err).Debug("failed to close image")
		}
	}()

	labels, err := img.Labels(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to read image labels")
		c.Err = err
	}

	c.DownstreamCommit = labels[LabelDownstreamCommit]
	if c.DownstreamCommit == "" {
		c.DownstreamCommit = labels[imgspecv1.AnnotationRevision]
	}
	if c.DownstreamCommit == "" && r.provenance != nil {
		repo, commit, err := r.provenance.SourceCommit(ctx, c.PullRef)
		if err != nil {
			log.WithError(err).Debug("no source commit in provenance")
		} else {
			c.DownstreamCommit = commit
			c.SourceRepo = repo
		}
	}
	if c.DownstreamCommit == "" {
		log.Infof("no %s label", LabelDownstreamCommit)
	}

	c.UpstreamCommit = strings.TrimSpace(labels[LabelUpstreamCommit])
	if c.UpstreamCommit == "" {
		head, err := img.ReadFile(ctx, UpstreamHeadPath)
		switch {
		case errors.Is(err, image.ErrFileNotFound):
			log.Infof("no %s file", UpstreamHeadPath)
		case err != nil:
			log.WithError(err).Warnf("failed to read %s", UpstreamHeadPath)
			c.Err = errors.Join(c.Err, err)
		default:
			c.UpstreamCommit = strings.TrimSpace(string(head))
		}
	}

	return c
}

// ResolveAll resolves every image with bounded parallelism and returns the
// components in input order. A failing image never stops the others; the
// error is only set when ctx is done before all images were resolved.
func (r *Resolver) ResolveAll(ctx context.Context, refs []string) ([]Component, error) {
	components := make([]Component, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			components[i] = r.Resolve(gctx, ref)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return components, fmt.Errorf("resolving component metadata: %w", err)
	}
	return components, nil
}
