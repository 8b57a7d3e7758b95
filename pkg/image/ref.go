package image

import (
	"fmt"
	"strings"

	"github.com/containers/image/v5/docker/reference"
	"github.com/opencontainers/go-digest"
)

// ShortName returns the part of an image reference after its final "/".
// Tags and digests are kept.
func ShortName(image string) string {
	if idx := strings.LastIndex(image, "/"); idx != -1 {
		return image[idx+1:]
	}
	return image
}

// RepoKey returns the short name of an image with any "@digest" suffix removed.
// It is the key used to look up the upstream repository of a component.
func RepoKey(image string) string {
	short := ShortName(image)
	if idx := strings.Index(short, "@"); idx != -1 {
		return short[:idx]
	}
	return short
}

// HasNamespace reports whether image lives under the given registry namespace,
// e.g. "quay.io/openshift-pipeline/".
func HasNamespace(image, namespace string) bool {
	if namespace == "" {
		return false
	}
	if !strings.HasSuffix(namespace, "/") {
		namespace += "/"
	}
	return strings.HasPrefix(image, namespace)
}

// Digest returns the digest of a digested reference, or "" when the reference
// has none or the digest is malformed.
func Digest(image string) string {
	idx := strings.LastIndex(image, "@")
	if idx == -1 || idx == len(image)-1 {
		return ""
	}
	d, err := digest.Parse(image[idx+1:])
	if err != nil {
		return ""
	}
	return d.String()
}

// Validate checks that image is a reference Open can work with. Plain and
// docker:// references must be well formed docker references; references
// of other transports are left to the transport, which parses them on
// Open.
func Validate(image string) error {
	if image == "" {
		return fmt.Errorf("empty image reference")
	}
	for _, char := range image {
		if char < 32 || char == 127 {
			return fmt.Errorf("invalid character in image reference")
		}
	}

	ref, isDocker := strings.CutPrefix(image, "docker://")
	if !isDocker && (hasTransportPrefix(image) || strings.Contains(image, "://")) {
		_, location, _ := strings.Cut(image, ":")
		if strings.Trim(location, "/") == "" {
			return fmt.Errorf("invalid image reference %q: missing location", image)
		}
		return nil
	}
	if _, err := reference.ParseNormalizedNamed(ref); err != nil {
		return fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	return nil
}
