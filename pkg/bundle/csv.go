package bundle

import (
	"fmt"
	"sort"

	"github.com/operator-framework/operator-manifest-tools/pkg/pullspec"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	kyaml "k8s.io/apimachinery/pkg/runtime/serializer/yaml"
	"k8s.io/apimachinery/pkg/util/sets"
)

const maxManifestSize = 5 * 1024 * 1024

// ClusterServiceVersion is the subset of a CSV read when operator-manifest-tools
// cannot process the document.
type ClusterServiceVersion struct {
	Kind string `yaml:"kind"`
	Spec struct {
		RelatedImages []struct {
			Image string `yaml:"image"`
		} `yaml:"relatedImages,omitempty"`
		Install struct {
			Spec struct {
				Deployments []struct {
					Spec struct {
						Template struct {
							Spec struct {
								Containers []struct {
									Image string `yaml:"image"`
								} `yaml:"containers"`
								InitContainers []struct {
									Image string `yaml:"image"`
								} `yaml:"initContainers,omitempty"`
							} `yaml:"spec"`
						} `yaml:"template"`
					} `yaml:"spec"`
				} `yaml:"deployments"`
			} `yaml:"spec"`
		} `yaml:"install"`
	} `yaml:"spec"`
}

// PullSpecs returns the sorted, distinct images referenced by the
// ClusterServiceVersion among a bundle's manifests. Manifests of any other
// kind are ignored. Both JSON and YAML documents are accepted.
func PullSpecs(manifests [][]byte) ([]string, error) {
	images := sets.New[string]()
	for i, content := range manifests {
		found, err := csvPullSpecs(content, fmt.Sprintf("manifest-%d", i))
		if err != nil {
			return nil, err
		}
		images.Insert(found...)
	}
	images.Delete("")
	return sets.List(images), nil
}

func csvPullSpecs(content []byte, filename string) ([]string, error) {
	if len(content) == 0 {
		return nil, nil
	}
	if len(content) > maxManifestSize {
		return nil, fmt.Errorf("manifest %s too large: %d bytes exceeds maximum of %d", filename, len(content), maxManifestSize)
	}

	var obj struct {
		Kind string `yaml:"kind"`
	}
	if err := yaml.Unmarshal(content, &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest %s: %w", filename, err)
	}
	if obj.Kind != "ClusterServiceVersion" {
		return nil, nil
	}

	operatorCSV, err := newOperatorCSV(content, filename)
	if err != nil {
		return legacyPullSpecs(content)
	}
	names, err := operatorCSV.GetPullSpecs()
	if err != nil {
		return legacyPullSpecs(content)
	}

	images := make([]string, 0, len(names))
	for _, name := range names {
		images = append(images, name.String())
	}
	return images, nil
}

func newOperatorCSV(content []byte, filename string) (*pullspec.OperatorCSV, error) {
	data := &unstructured.Unstructured{}
	dec := kyaml.NewDecodingSerializer(unstructured.UnstructuredJSONScheme)
	if _, _, err := dec.Decode(content, nil, data); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return pullspec.NewOperatorCSV(filename, data, pullspec.DefaultHeuristic)
}

// legacyPullSpecs reads relatedImages and container images directly.
func legacyPullSpecs(content []byte) ([]string, error) {
	var csv ClusterServiceVersion
	if err := yaml.Unmarshal(content, &csv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal CSV: %w", err)
	}

	var images []string
	for _, ri := range csv.Spec.RelatedImages {
		images = append(images, ri.Image)
	}
	for _, d := range csv.Spec.Install.Spec.Deployments {
		for _, c := range d.Spec.Template.Spec.Containers {
			images = append(images, c.Image)
		}
		for _, c := range d.Spec.Template.Spec.InitContainers {
			images = append(images, c.Image)
		}
	}
	sort.Strings(images)
	return images, nil
}
