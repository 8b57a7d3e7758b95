package handlers

import (
	"context"
	"fmt"

	"github.com/openshift-pipelines/index-info/pkg/catalog"
	"github.com/openshift-pipelines/index-info/pkg/metadata"
	"github.com/openshift-pipelines/index-info/pkg/report"
)

// InspectRequest represents the parameters for inspecting an index image
type InspectRequest struct {
	IndexImage string
	Selection  Selection
	// SkipMetadata lists the images without fetching any of them.
	SkipMetadata bool
}

// InspectResult represents the result of an inspection
type InspectResult struct {
	Bundle *catalog.Bundle
	Report *report.Report
}

// InspectHandler resolves the component metadata of a bundle in an index image
type InspectHandler struct {
	index    *Index
	resolver *metadata.Resolver
}

// NewInspectHandler creates a new InspectHandler
func NewInspectHandler(index *Index, resolver *metadata.Resolver) *InspectHandler {
	return &InspectHandler{
		index:    index,
		resolver: resolver,
	}
}

// Bundle loads the catalog and selects the requested bundle.
func (h *InspectHandler) Bundle(ctx context.Context, req InspectRequest) (*catalog.Bundle, error) {
	if err := h.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	cat, err := h.index.Catalog(ctx, req.IndexImage)
	if err != nil {
		return nil, err
	}
	return h.index.SelectBundle(cat, req.Selection)
}

// Inspect selects a bundle and resolves the metadata of its related images.
// Failures of single images are recorded in their components; only
// resolution-phase failures and cancellation are returned.
func (h *InspectHandler) Inspect(ctx context.Context, req InspectRequest) (*InspectResult, error) {
	b, err := h.Bundle(ctx, req)
	if err != nil {
		return nil, err
	}

	images, err := h.index.BundleImages(b)
	if err != nil {
		return nil, err
	}

	var components []metadata.Component
	if req.SkipMetadata {
		for _, ref := range images {
			components = append(components, metadata.NewComponent(ref))
		}
	} else {
		components, err = h.resolver.ResolveAll(ctx, images)
		if err != nil {
			return nil, err
		}
	}

	r := report.New(b.Name(), b.Version(), components)
	r.Deduplicate()
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report: %w", err)
	}

	return &InspectResult{Bundle: b, Report: r}, nil
}

// validateRequest validates the inspect request parameters
func (h *InspectHandler) validateRequest(req InspectRequest) error {
	if req.IndexImage == "" {
		return fmt.Errorf("index image is required")
	}
	return nil
}
