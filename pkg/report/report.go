// Package report renders resolved component metadata for a bundle.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/openshift-pipelines/index-info/pkg/image"
	"github.com/openshift-pipelines/index-info/pkg/metadata"
)

// Report is the metadata of every related image of one bundle.
type Report struct {
	Bundle  string
	Version string
	Images  []metadata.Component
}

// New returns a report with its images sorted by full reference.
func New(bundle, version string, images []metadata.Component) *Report {
	r := &Report{
		Bundle:  bundle,
		Version: version,
		Images:  append([]metadata.Component(nil), images...),
	}
	r.Sort()
	return r
}

// Sort orders the images by full reference.
func (r *Report) Sort() {
	sort.SliceStable(r.Images, func(i, j int) bool {
		return r.Images[i].Image < r.Images[j].Image
	})
}

// Deduplicate drops repeated image references, keeping the first.
func (r *Report) Deduplicate() {
	seen := make(map[string]bool)
	var unique []metadata.Component
	for _, c := range r.Images {
		if seen[c.Image] {
			continue
		}
		seen[c.Image] = true
		unique = append(unique, c)
	}
	r.Images = unique
}

// Validate performs basic validation on the report
func (r *Report) Validate() error {
	if r.Bundle == "" {
		return fmt.Errorf("bundle name cannot be empty")
	}
	for i, c := range r.Images {
		if c.Image == "" {
			return fmt.Errorf("image %d has an empty reference", i)
		}
	}
	return nil
}

// WriteText writes the bundle header followed by one fragment per image.
func (r *Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "bundle: %s\n", r.Bundle)
	fmt.Fprintf(bw, "version: %s\n", r.Version)
	fmt.Fprintln(bw, "images:")
	writeFragments(bw, r.Images)
	return bw.Flush()
}

// Fragment renders the text block of a single component: a YAML list item
// keyed by short name holding downstream_commit and upstream_commit, or
// "{}" when neither is known.
func Fragment(c metadata.Component) string {
	if !c.HasMetadata() {
		return fmt.Sprintf("- %s: {}\n", c.ShortName)
	}
	s := fmt.Sprintf("- %s:\n", c.ShortName)
	if c.DownstreamCommit != "" {
		s += fmt.Sprintf("    downstream_commit: %s\n", c.DownstreamCommit)
	}
	if up := c.UpstreamRef(); up != "" {
		s += fmt.Sprintf("    upstream_commit: %s\n", up)
	}
	return s
}

func writeFragments(w io.Writer, images []metadata.Component) {
	for _, c := range images {
		io.WriteString(w, Fragment(c))
	}
}

// Document is the structured form of a report.
type Document struct {
	Bundle  string           `json:"bundle" yaml:"bundle"`
	Version string           `json:"version" yaml:"version"`
	Images  map[string]Entry `json:"images" yaml:"images"`
}

// Entry describes one image of a Document.
type Entry struct {
	Image            string `json:"image" yaml:"image"`
	DownstreamCommit string `json:"downstream_commit,omitempty" yaml:"downstream_commit,omitempty"`
	UpstreamCommit   string `json:"upstream_commit,omitempty" yaml:"upstream_commit,omitempty"`
	GitLink          string `json:"git_link,omitempty" yaml:"git_link,omitempty"`
	// SourceRepo is the repository named by build provenance when the
	// downstream commit came from there.
	SourceRepo string `json:"source_repo,omitempty" yaml:"source_repo,omitempty"`
	Digest     string `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// Document keys images by repo key. When two images share a key the later
// one is keyed by its short name. Commit data is left out unless showInfo is
// set.
func (r *Report) Document(showInfo bool) Document {
	doc := Document{
		Bundle:  r.Bundle,
		Version: r.Version,
		Images:  make(map[string]Entry, len(r.Images)),
	}
	for _, c := range r.Images {
		key := c.RepoKey
		if _, taken := doc.Images[key]; taken {
			key = c.ShortName
		}
		entry := Entry{Image: c.Image}
		if showInfo {
			entry.DownstreamCommit = c.DownstreamCommit
			entry.UpstreamCommit = c.UpstreamCommit
			entry.GitLink = c.GitLink()
			entry.SourceRepo = c.SourceRepo
			entry.Digest = image.Digest(c.Image)
		}
		doc.Images[key] = entry
	}
	return doc
}

// JSON renders the Document as indented JSON.
func (r *Report) JSON(showInfo bool) ([]byte, error) {
	out, err := json.MarshalIndent(r.Document(showInfo), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(out, '\n'), nil
}

// YAML renders the Document as YAML.
func (r *Report) YAML(showInfo bool) ([]byte, error) {
	out, err := yaml.Marshal(r.Document(showInfo))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return out, nil
}

// Format names an output encoding of the structured report.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Encode renders the Document in the given format.
func (r *Report) Encode(format Format, showInfo bool) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return r.JSON(showInfo)
	case FormatYAML:
		return r.YAML(showInfo)
	default:
		return nil, fmt.Errorf("unsupported output format %q (expected json or yaml)", format)
	}
}
