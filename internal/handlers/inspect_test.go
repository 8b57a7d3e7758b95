package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshift-pipelines/index-info/pkg/catalog"
	"github.com/openshift-pipelines/index-info/pkg/image"
	"github.com/openshift-pipelines/index-info/pkg/metadata"
	"github.com/openshift-pipelines/index-info/pkg/selector"
)

const (
	testPackage     = "op"
	indexImage      = "quay.io/openshift-pipeline/index:v4.17"
	controllerImage = "quay.io/openshift-pipeline/pipelines-controller-rhel9@sha256:abc"
	foreignImage    = "quay.io/other/foo:latest"
)

const singleChannelCatalog = `{
    "schema": "olm.package",
    "name": "op",
    "defaultChannel": "latest"
}
{
    "schema": "olm.channel",
    "name": "latest",
    "package": "op",
    "entries": [
        {
            "name": "op.v1.2.3"
        }
    ]
}
{
    "schema": "olm.bundle",
    "name": "op.v1.2.3",
    "package": "op",
    "image": "quay.io/openshift-pipeline/op-bundle:v1.2.3",
    "properties": [
        {
            "type": "olm.package",
            "value": {
                "packageName": "op",
                "version": "1.2.3"
            }
        }
    ],
    "relatedImages": [
        {
            "name": "foo",
            "image": "quay.io/other/foo:latest"
        },
        {
            "name": "controller",
            "image": "quay.io/openshift-pipeline/pipelines-controller-rhel9@sha256:abc"
        },
        {
            "name": "controller-again",
            "image": "quay.io/openshift-pipeline/pipelines-controller-rhel9@sha256:abc"
        }
    ]
}
`

const twoChannelCatalog = `{"schema": "olm.channel", "name": "latest", "package": "op", "entries": [{"name": "op.v1.2.3"}]}
{"schema": "olm.channel", "name": "pipelines-1.2", "package": "op", "entries": [{"name": "op.v1.2.2"}, {"name": "op.v1.2.3"}]}
{"schema": "olm.bundle", "name": "op.v1.2.2", "package": "op", "properties": [{"type": "olm.package", "value": {"packageName": "op", "version": "1.2.2"}}], "relatedImages": [{"name": "foo", "image": "quay.io/other/foo:1.2.2"}]}
{"schema": "olm.bundle", "name": "op.v1.2.3", "package": "op", "properties": [{"type": "olm.package", "value": {"packageName": "op", "version": "1.2.3"}}], "relatedImages": [{"name": "foo", "image": "quay.io/other/foo:1.2.3"}]}
`

func indexWith(doc string) fakeImage {
	return fakeImage{files: map[string]string{catalog.Path(testPackage): doc}}
}

func newInspectHandler(src *fakeSource, sel selector.Selector) *InspectHandler {
	log := quietLogger()
	resolver := metadata.NewResolver(src, metadata.NewRepositoryTable(nil),
		metadata.WithLogger(log),
		metadata.WithParallelism(2),
	)
	return NewInspectHandler(NewIndex(src, sel, testPackage, "", log), resolver)
}

func TestInspectEndToEnd(t *testing.T) {
	src := &fakeSource{images: map[string]fakeImage{
		indexImage: indexWith(singleChannelCatalog),
		controllerImage: {
			labels: map[string]string{metadata.LabelDownstreamCommit: "0123abcd"},
			files:  map[string]string{metadata.UpstreamHeadPath: "4567ef\n"},
		},
	}}

	result, err := newInspectHandler(src, failingSelector{t}).Inspect(context.Background(), InspectRequest{IndexImage: indexImage})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, result.Report.WriteText(&buf))
	assert.Equal(t, `bundle: op.v1.2.3
version: 1.2.3
images:
- pipelines-controller-rhel9@sha256:abc:
    downstream_commit: 0123abcd
    upstream_commit: https://github.com/tektoncd/pipeline/commit/4567ef
- foo:latest: {}
`, buf.String())
	assert.NotContains(t, src.opened, foreignImage)
}

func TestInspectPromptsForChannelAndBundle(t *testing.T) {
	src := &fakeSource{images: map[string]fakeImage{indexImage: indexWith(twoChannelCatalog)}}
	sel := &scriptedSelector{answers: []string{"pipelines-1.2", "op.v1.2.2"}}

	result, err := newInspectHandler(src, sel).Inspect(context.Background(), InspectRequest{IndexImage: indexImage, SkipMetadata: true})
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"latest", "pipelines-1.2"},
		{"op.v1.2.2", "op.v1.2.3"},
	}, sel.options)
	assert.Equal(t, "op.v1.2.2", result.Report.Bundle)
	assert.Equal(t, "1.2.2", result.Report.Version)
}

func TestInspectSingleEntryChannelDoesNotPrompt(t *testing.T) {
	src := &fakeSource{images: map[string]fakeImage{indexImage: indexWith(twoChannelCatalog)}}
	sel := &scriptedSelector{answers: []string{"latest"}}

	result, err := newInspectHandler(src, sel).Inspect(context.Background(), InspectRequest{IndexImage: indexImage, SkipMetadata: true})
	require.NoError(t, err)

	assert.Len(t, sel.prompts, 1, "only the channel is asked for")
	assert.Equal(t, "op.v1.2.3", result.Report.Bundle)
}

func TestInspectSelection(t *testing.T) {
	tests := []struct {
		name       string
		selection  Selection
		wantBundle string
		wantErr    error
	}{
		{
			name:       "channel and bundle flags",
			selection:  Selection{Channel: "pipelines-1.2", Bundle: "op.v1.2.2"},
			wantBundle: "op.v1.2.2",
		},
		{
			name:       "full bundle name",
			selection:  Selection{Bundle: "op.v1.2.2"},
			wantBundle: "op.v1.2.2",
		},
		{
			name:       "bundle name without package",
			selection:  Selection{Bundle: "v1.2.3"},
			wantBundle: "op.v1.2.3",
		},
		{
			name:      "ambiguous prefix",
			selection: Selection{Bundle: "op.v1.2"},
			wantErr:   catalog.ErrAmbiguousBundle,
		},
		{
			name:      "unknown bundle",
			selection: Selection{Bundle: "v9"},
			wantErr:   catalog.ErrBundleNotFound,
		},
		{
			name:      "unknown channel",
			selection: Selection{Channel: "stable"},
			wantErr:   catalog.ErrChannelNotFound,
		},
		{
			name:      "bundle outside channel",
			selection: Selection{Channel: "latest", Bundle: "op.v1.2.2"},
			wantErr:   catalog.ErrBundleNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{images: map[string]fakeImage{indexImage: indexWith(twoChannelCatalog)}}
			b, err := newInspectHandler(src, failingSelector{t}).Bundle(context.Background(), InspectRequest{
				IndexImage: indexImage,
				Selection:  tt.selection,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBundle, b.Name())
		})
	}
}

func TestInspectNoSelection(t *testing.T) {
	src := &fakeSource{images: map[string]fakeImage{indexImage: indexWith(twoChannelCatalog)}}

	_, err := newInspectHandler(src, &scriptedSelector{}).Inspect(context.Background(), InspectRequest{IndexImage: indexImage})
	assert.ErrorIs(t, err, selector.ErrNoSelection)
}

func TestInspectResolutionFailures(t *testing.T) {
	tests := []struct {
		name    string
		images  map[string]fakeImage
		request InspectRequest
		wantErr string
	}{
		{
			name:    "missing index image argument",
			request: InspectRequest{},
			wantErr: "index image is required",
		},
		{
			name:    "invalid index reference",
			request: InspectRequest{IndexImage: "quay.io/UPPER/index"},
			wantErr: "invalid index image",
		},
		{
			name:    "index cannot be fetched",
			request: InspectRequest{IndexImage: indexImage},
			wantErr: "failed to open index image",
		},
		{
			name:    "catalog missing from index",
			images:  map[string]fakeImage{indexImage: {}},
			request: InspectRequest{IndexImage: indexImage},
			wantErr: "/configs/op/catalog.json",
		},
		{
			name:    "catalog is not JSON",
			images:  map[string]fakeImage{indexImage: indexWith("{not json")},
			request: InspectRequest{IndexImage: indexImage},
			wantErr: "failed to load catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{images: tt.images}
			_, err := newInspectHandler(src, failingSelector{t}).Inspect(context.Background(), tt.request)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInspectMissingCatalogIsFileNotFound(t *testing.T) {
	src := &fakeSource{images: map[string]fakeImage{indexImage: {}}}
	_, err := newInspectHandler(src, failingSelector{t}).Inspect(context.Background(), InspectRequest{IndexImage: indexImage})
	assert.ErrorIs(t, err, image.ErrFileNotFound)
}

func TestInspectFallsBackToBundleManifests(t *testing.T) {
	csv := `{"apiVersion": "operators.coreos.com/v1alpha1", "kind": "ClusterServiceVersion", "metadata": {"name": "op.v1.0.0"},
"spec": {"relatedImages": [{"name": "controller", "image": "quay.io/openshift-pipeline/pipelines-controller-rhel9@sha256:abc"}]}}`
	doc := fmt.Sprintf(`{"schema": "olm.channel", "name": "latest", "package": "op", "entries": [{"name": "op.v1.0.0"}]}
{"schema": "olm.bundle", "name": "op.v1.0.0", "package": "op", "properties": [{"type": "olm.bundle.object", "value": {"data": %q}}]}
`, base64.StdEncoding.EncodeToString([]byte(csv)))

	src := &fakeSource{images: map[string]fakeImage{indexImage: indexWith(doc)}}
	result, err := newInspectHandler(src, failingSelector{t}).Inspect(context.Background(), InspectRequest{IndexImage: indexImage, SkipMetadata: true})
	require.NoError(t, err)

	var images []string
	for _, c := range result.Report.Images {
		images = append(images, c.Image)
	}
	assert.Contains(t, images, controllerImage)
	assert.Equal(t, "", result.Report.Version)
}

func TestInspectSkipMetadataFetchesOnlyIndex(t *testing.T) {
	src := &fakeSource{images: map[string]fakeImage{indexImage: indexWith(singleChannelCatalog)}}

	result, err := newInspectHandler(src, failingSelector{t}).Inspect(context.Background(), InspectRequest{IndexImage: indexImage, SkipMetadata: true})
	require.NoError(t, err)

	assert.Equal(t, []string{indexImage}, src.opened)
	require.Len(t, result.Report.Images, 2)
	for _, c := range result.Report.Images {
		assert.False(t, c.HasMetadata())
		assert.False(t, strings.Contains(c.RepoKey, "@"))
	}
}

func TestBundleOpensOnlyTheIndex(t *testing.T) {
	src := &fakeSource{images: map[string]fakeImage{indexImage: indexWith(twoChannelCatalog)}}

	b, err := newInspectHandler(src, failingSelector{t}).Bundle(context.Background(), InspectRequest{
		IndexImage: indexImage,
		Selection:  Selection{Bundle: "v1.2.2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "op.v1.2.2", b.Name())
	assert.Equal(t, "1.2.2", b.Version())
	assert.Equal(t, []string{indexImage}, src.opened)

	_, err = newInspectHandler(src, failingSelector{t}).Bundle(context.Background(), InspectRequest{})
	assert.Error(t, err)
}

func TestCatalogAcceptsTransportReferences(t *testing.T) {
	refs := []string{
		"oci:/tmp/layout:index",
		"docker://quay.io/openshift-pipeline/index:v4.17",
		"containers-storage:quay.io/x/index:v1",
	}
	src := &fakeSource{images: map[string]fakeImage{}}
	for _, ref := range refs {
		src.images[ref] = indexWith(singleChannelCatalog)
	}
	index := NewIndex(src, failingSelector{t}, testPackage, "", quietLogger())

	for _, ref := range refs {
		cat, err := index.Catalog(context.Background(), ref)
		require.NoError(t, err, ref)
		assert.Equal(t, []string{"latest"}, cat.ChannelNames())
	}
	assert.Equal(t, refs, src.opened)

	_, err := index.Catalog(context.Background(), "quay.io/UPPER/index")
	assert.Error(t, err)
}

func TestSelectBundleLogsTheOnlyChannel(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	cat, err := catalog.LoadBytes([]byte(singleChannelCatalog))
	require.NoError(t, err)

	b, err := NewIndex(&fakeSource{}, failingSelector{t}, testPackage, "", log).SelectBundle(cat, Selection{})
	require.NoError(t, err)
	assert.Equal(t, "op.v1.2.3", b.Name())

	var infos []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel {
			infos = append(infos, e.Message)
		}
	}
	assert.Equal(t, []string{"using channel latest, the only one in the catalog"}, infos)
}
