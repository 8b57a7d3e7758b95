package provenance

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	ggcrremote "github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/sigstore/cosign/v2/pkg/cosign"
	ociremote "github.com/sigstore/cosign/v2/pkg/oci/remote"
	"github.com/sirupsen/logrus"
)

// ErrNoSource is returned when none of an image's attestations names a git
// source.
var ErrNoSource = errors.New("no git source in provenance")

// Info contains source information extracted from a provenance attestation
type Info struct {
	ImageRef      string
	SourceRepo    string
	SourceCommit  string
	BuildPlatform string
}

// SLSAAttestation represents a unified SLSA provenance structure supporting both v0.1 and v1.0
type SLSAAttestation struct {
	PredicateType string `json:"predicateType"`
	Predicate     struct {
		Builder struct {
			ID string `json:"id"`
		} `json:"builder"`

		// SLSA v1.0 format
		BuildDefinition struct {
			ExternalParameters   map[string]interface{} `json:"externalParameters"`
			ResolvedDependencies []material             `json:"resolvedDependencies"`
		} `json:"buildDefinition"`
		RunDetails struct {
			Builder struct {
				ID string `json:"id"`
			} `json:"builder"`
		} `json:"runDetails"`

		// SLSA v0.1 / v0.2 format
		Materials []material `json:"materials"`
	} `json:"predicate"`
}

type material struct {
	URI    string            `json:"uri"`
	Digest map[string]string `json:"digest"`
}

// FetchFunc returns the attestations attached to an image.
type FetchFunc func(ctx context.Context, ref name.Reference) ([]cosign.AttestationPayload, error)

// Parser extracts the git source of an image from its cosign attestations.
type Parser struct {
	fetch             FetchFunc
	log               logrus.FieldLogger
	nameOpts          []name.Option
	remoteOpts        []ociremote.Option
	maxAttestations   int
	maxPayloadSize    int64
	processingTimeout time.Duration
}

// NewParser creates a Parser that reads attestations from the registry.
func NewParser() *Parser {
	p := &Parser{
		log:               logrus.StandardLogger(),
		maxAttestations:   50,
		maxPayloadSize:    10 * 1024 * 1024,
		processingTimeout: 30 * time.Second,
	}
	p.fetch = p.fetchAttestations
	return p
}

// SetFetcher replaces the attestation source.
func (p *Parser) SetFetcher(fetch FetchFunc) {
	if fetch != nil {
		p.fetch = fetch
	}
}

// SetLogger sets the logger used for debug output.
func (p *Parser) SetLogger(log logrus.FieldLogger) {
	if log != nil {
		p.log = log
	}
}

// SetMaxAttestations sets the maximum number of attestations to process per image
func (p *Parser) SetMaxAttestations(max int) {
	if max > 0 && max <= 1000 {
		p.maxAttestations = max
	}
}

// SetProcessingTimeout sets the timeout for a single image lookup
func (p *Parser) SetProcessingTimeout(timeout time.Duration) {
	if timeout > 0 && timeout <= 5*time.Minute {
		p.processingTimeout = timeout
	}
}

// SetTLSVerify controls certificate verification of the registry serving
// the attestations. Without it plain HTTP is allowed too.
func (p *Parser) SetTLSVerify(verify bool) {
	if verify {
		p.nameOpts = nil
		p.remoteOpts = nil
		return
	}
	transport := ggcrremote.DefaultTransport.(*http.Transport).Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	}
	transport.TLSClientConfig.InsecureSkipVerify = true // nolint:gosec
	p.nameOpts = []name.Option{name.Insecure}
	p.remoteOpts = []ociremote.Option{
		ociremote.WithRemoteOptions(ggcrremote.WithTransport(transport)),
	}
}

// SourceCommit returns the GitHub repository and commit an image was built
// from. The repository is "owner/name" for GitHub sources and the plain URL
// otherwise.
func (p *Parser) SourceCommit(ctx context.Context, imageRef string) (string, string, error) {
	info, err := p.Parse(ctx, imageRef)
	if err != nil {
		return "", "", err
	}
	if info.BuildPlatform != "" {
		p.log.Debugf("%s was built by %s", imageRef, info.BuildPlatform)
	}
	return RepoSlug(info.SourceRepo), info.SourceCommit, nil
}

// Parse fetches the attestations of imageRef and returns the first one
// naming a git source.
func (p *Parser) Parse(ctx context.Context, imageRef string) (Info, error) {
	info := Info{ImageRef: imageRef}

	ctx, cancel := context.WithTimeout(ctx, p.processingTimeout)
	defer cancel()

	ref, err := name.ParseReference(imageRef, p.nameOpts...)
	if err != nil {
		return info, fmt.Errorf("failed to parse image reference: %w", err)
	}

	attestations, err := p.fetch(ctx, ref)
	if err != nil {
		return info, fmt.Errorf("failed to get attestations: %w", err)
	}
	if len(attestations) == 0 {
		return info, fmt.Errorf("%s: %w", imageRef, ErrNoSource)
	}

	if len(attestations) > p.maxAttestations {
		p.log.Debugf("limiting attestations from %d to %d for image %s", len(attestations), p.maxAttestations, imageRef)
		attestations = attestations[:p.maxAttestations]
	}

	for i, attestation := range attestations {
		if err := ctx.Err(); err != nil {
			return info, fmt.Errorf("provenance parsing stopped after %d attestations: %w", i, err)
		}
		if err := p.parsePayload(attestation, &info); err != nil {
			p.log.Debugf("skipping attestation %d for %s: %v", i, imageRef, err)
			continue
		}
		if info.SourceRepo != "" && info.SourceCommit != "" {
			return info, nil
		}
	}

	return info, fmt.Errorf("%s: %w", imageRef, ErrNoSource)
}

func (p *Parser) fetchAttestations(ctx context.Context, ref name.Reference) ([]cosign.AttestationPayload, error) {
	return cosign.FetchAttestationsForReference(ctx, ref, "", p.remoteOpts...)
}

// parsePayload decodes a base64 or raw JSON payload and extracts its source.
func (p *Parser) parsePayload(attestation cosign.AttestationPayload, info *Info) error {
	if int64(len(attestation.PayLoad)) > p.maxPayloadSize {
		return fmt.Errorf("attestation payload too large: %d bytes exceeds maximum of %d bytes",
			len(attestation.PayLoad), p.maxPayloadSize)
	}

	payload := strings.TrimSpace(attestation.PayLoad)
	decoded := []byte(payload)
	if !strings.HasPrefix(payload, "{") {
		if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
			decoded = b
		}
	}

	var statement SLSAAttestation
	if err := json.Unmarshal(decoded, &statement); err != nil {
		return fmt.Errorf("failed to unmarshal attestation: %w", err)
	}
	if !isSLSAProvenance(statement.PredicateType) {
		return fmt.Errorf("not a SLSA provenance attestation: %q", statement.PredicateType)
	}

	materials := statement.Predicate.Materials
	if isSLSAv1(&statement) {
		materials = statement.Predicate.BuildDefinition.ResolvedDependencies
	}
	for _, m := range materials {
		if !strings.HasPrefix(m.URI, "git+") {
			continue
		}
		info.SourceRepo = m.URI
		info.SourceCommit = m.Digest["sha1"]
		break
	}

	info.BuildPlatform = statement.Predicate.Builder.ID
	if info.BuildPlatform == "" {
		info.BuildPlatform = statement.Predicate.RunDetails.Builder.ID
	}
	return nil
}

func isSLSAProvenance(predicateType string) bool {
	switch predicateType {
	case "https://slsa.dev/provenance/v0.1",
		"https://slsa.dev/provenance/v0.2",
		"https://slsa.dev/provenance/v1",
		"slsaprovenance":
		return true
	}
	return false
}

// isSLSAv1 detects the v1.0 layout by its buildDefinition.
func isSLSAv1(attestation *SLSAAttestation) bool {
	return len(attestation.Predicate.BuildDefinition.ResolvedDependencies) > 0 ||
		len(attestation.Predicate.BuildDefinition.ExternalParameters) > 0
}

// RepoSlug turns a git material URI such as
// git+https://github.com/openshift-pipelines/tektoncd-pipeline.git@refs/heads/main
// into openshift-pipelines/tektoncd-pipeline. Non-GitHub URIs are returned
// without the git+ prefix and ref suffix.
func RepoSlug(uri string) string {
	s := strings.TrimPrefix(uri, "git+")
	if i := strings.Index(s, "@refs/"); i >= 0 {
		s = s[:i]
	}
	if slash := strings.LastIndex(s, "/"); slash >= 0 {
		if at := strings.Index(s[slash:], "@"); at >= 0 {
			s = s[:slash+at]
		}
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "ssh://git@github.com/"} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix)
		}
	}
	return s
}
