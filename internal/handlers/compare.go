package handlers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/openshift-pipelines/index-info/pkg/github"
	"github.com/openshift-pipelines/index-info/pkg/metadata"
)

// CompareAction selects what is printed for each changed repository.
type CompareAction string

const (
	ShowHeads       CompareAction = "show-heads"
	ShowCompareURLs CompareAction = "show-compare-urls"
	ShowAllSHAs     CompareAction = "show-all-shas"
	ShowAllCommits  CompareAction = "show-all-commits"
)

// CompareActions lists the supported actions.
var CompareActions = []CompareAction{ShowHeads, ShowCompareURLs, ShowAllSHAs, ShowAllCommits}

// CompareRequest represents the parameters for comparing two index images
type CompareRequest struct {
	OldIndex string
	NewIndex string
	Action   CompareAction
	// Bundle is looked up by name prefix in both indexes.
	Bundle string
}

// RepoChange is the move of one upstream repository between two bundles.
type RepoChange struct {
	Image       string
	Repo        string
	OldRevision string
	NewRevision string
}

// CompareResult represents the result of a comparison
type CompareResult struct {
	OldBundle string
	NewBundle string
	Changes   []RepoChange
}

// CommitLister lists the commits between two revisions of a repository.
type CommitLister interface {
	CompareURL(repo, base, head string) string
	Commits(ctx context.Context, repo, base, head string) ([]github.Commit, error)
}

// CompareHandler reports the upstream changes between the same bundle in two
// index images
type CompareHandler struct {
	index    *Index
	resolver *metadata.Resolver
	commits  CommitLister
	log      logrus.FieldLogger
}

// NewCompareHandler creates a new CompareHandler
func NewCompareHandler(index *Index, resolver *metadata.Resolver, commits CommitLister, log logrus.FieldLogger) *CompareHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CompareHandler{
		index:    index,
		resolver: resolver,
		commits:  commits,
		log:      log,
	}
}

// Compare resolves the bundle in both indexes and pairs their images.
func (h *CompareHandler) Compare(ctx context.Context, req CompareRequest) (*CompareResult, error) {
	if err := h.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	oldComponents, oldBundle, err := h.components(ctx, req.OldIndex, req.Bundle)
	if err != nil {
		return nil, err
	}
	newComponents, newBundle, err := h.components(ctx, req.NewIndex, req.Bundle)
	if err != nil {
		return nil, err
	}

	return &CompareResult{
		OldBundle: oldBundle,
		NewBundle: newBundle,
		Changes:   Changes(oldComponents, newComponents, h.log),
	}, nil
}

func (h *CompareHandler) components(ctx context.Context, indexImage, bundleName string) ([]metadata.Component, string, error) {
	cat, err := h.index.Catalog(ctx, indexImage)
	if err != nil {
		return nil, "", err
	}
	b, err := h.index.SelectBundle(cat, Selection{Bundle: bundleName})
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", indexImage, err)
	}
	images, err := h.index.BundleImages(b)
	if err != nil {
		return nil, "", err
	}
	components, err := h.resolver.ResolveAll(ctx, images)
	if err != nil {
		return nil, "", err
	}
	return components, b.Name(), nil
}

// Changes pairs old and new components by repo key. Pairs missing either
// side, or lacking the upstream repository or commit on either side, are
// skipped with a warning. The first complete pair of an upstream repository
// wins. Changes are sorted by repository.
func Changes(oldComponents, newComponents []metadata.Component, log logrus.FieldLogger) []RepoChange {
	oldByKey := make(map[string]metadata.Component, len(oldComponents))
	for _, c := range oldComponents {
		if _, ok := oldByKey[c.RepoKey]; !ok {
			oldByKey[c.RepoKey] = c
		}
	}

	sorted := append([]metadata.Component(nil), newComponents...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Image < sorted[j].Image })

	byRepo := make(map[string]RepoChange)
	for _, newC := range sorted {
		oldC, ok := oldByKey[newC.RepoKey]
		if !ok {
			log.Warnf("Skipping image %s - missing image to compare", newC.RepoKey)
			continue
		}
		if oldC.GitLink() == "" || newC.GitLink() == "" {
			log.Warnf("Skipping image %s - no upstream info", newC.RepoKey)
			continue
		}
		if _, done := byRepo[newC.UpstreamRepo]; done {
			continue
		}
		byRepo[newC.UpstreamRepo] = RepoChange{
			Image:       newC.RepoKey,
			Repo:        newC.UpstreamRepo,
			OldRevision: oldC.UpstreamCommit,
			NewRevision: newC.UpstreamCommit,
		}
	}

	changes := make([]RepoChange, 0, len(byRepo))
	for _, c := range byRepo {
		changes = append(changes, c)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Repo < changes[j].Repo })
	return changes
}

// Write prints result for the given action. GitHub failures for a
// repository are logged and the remaining repositories are still printed.
func (h *CompareHandler) Write(ctx context.Context, w io.Writer, req CompareRequest, result *CompareResult) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Comparing %s to %s for %s\n---\n", req.OldIndex, req.NewIndex, result.NewBundle)

	for _, change := range result.Changes {
		fmt.Fprintf(bw, "%s:\n", change.Repo)
		switch req.Action {
		case ShowHeads:
			fmt.Fprintf(bw, "\told commit: %s\n\tnew commit: %s\n", change.OldRevision, change.NewRevision)
		case ShowCompareURLs:
			fmt.Fprintf(bw, "\t%s\n", h.commits.CompareURL(change.Repo, change.OldRevision, change.NewRevision))
		case ShowAllSHAs, ShowAllCommits:
			commits, err := h.commits.Commits(ctx, change.Repo, change.OldRevision, change.NewRevision)
			if err != nil {
				h.log.WithError(err).WithField("repo", change.Repo).Errorf("Could not get commits for image %s", change.Image)
				continue
			}
			for _, c := range commits {
				if req.Action == ShowAllSHAs {
					fmt.Fprintf(bw, "\t%s\n", c.SHA)
					continue
				}
				fmt.Fprintf(bw, "\n\t%s\n\t\t %s\n", c.SHA, strings.ReplaceAll(c.Message, "\n", "\n\t\t"))
			}
		}
	}
	return bw.Flush()
}

// validateRequest validates the compare request parameters
func (h *CompareHandler) validateRequest(req CompareRequest) error {
	if req.OldIndex == "" || req.NewIndex == "" {
		return fmt.Errorf("old and new index images are required")
	}
	if req.Bundle == "" {
		return fmt.Errorf("bundle name is required")
	}
	for _, a := range CompareActions {
		if req.Action == a {
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", req.Action)
}
