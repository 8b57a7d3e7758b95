package handlers

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/openshift-pipelines/index-info/pkg/image"
	"github.com/openshift-pipelines/index-info/pkg/metadata"
)

// ImageStatus is the outcome of checking a single image.
type ImageStatus struct {
	Image string
	Err   error
}

// ValidateResult represents the result of validating the images of a bundle
type ValidateResult struct {
	Bundle string
	Images []ImageStatus
}

// Missing aggregates the errors of all images that could not be found.
func (r *ValidateResult) Missing() error {
	var errs []error
	for _, s := range r.Images {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Image, s.Err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// ValidateHandler checks that every related image of a bundle exists
type ValidateHandler struct {
	index       *Index
	source      image.Source
	mirrors     metadata.Mirrors
	parallelism int
}

// NewValidateHandler creates a new ValidateHandler. mirrors may be nil.
func NewValidateHandler(index *Index, source image.Source, mirrors metadata.Mirrors, parallelism int) *ValidateHandler {
	if parallelism < 1 {
		parallelism = metadata.DefaultParallelism
	}
	return &ValidateHandler{
		index:       index,
		source:      source,
		mirrors:     mirrors,
		parallelism: parallelism,
	}
}

// ValidateImages checks the related images of the selected bundle. Missing
// images are reported in the result, not as an error.
func (h *ValidateHandler) ValidateImages(ctx context.Context, req InspectRequest) (*ValidateResult, error) {
	if req.IndexImage == "" {
		return nil, fmt.Errorf("invalid request: index image is required")
	}

	cat, err := h.index.Catalog(ctx, req.IndexImage)
	if err != nil {
		return nil, err
	}
	b, err := h.index.SelectBundle(cat, req.Selection)
	if err != nil {
		return nil, err
	}
	images, err := h.index.BundleImages(b)
	if err != nil {
		return nil, err
	}

	result := &ValidateResult{
		Bundle: b.Name(),
		Images: make([]ImageStatus, len(images)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallelism)
	for i, ref := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pullRef := ref
			if h.mirrors != nil {
				pullRef = h.mirrors.Resolve(ref)
			}
			result.Images[i] = ImageStatus{Image: ref, Err: h.source.Exists(gctx, pullRef)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validating images: %w", err)
	}

	return result, nil
}
