package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/containers/image/v5/pkg/blobinfocache/memory"
	"github.com/containers/image/v5/pkg/compression"
	"github.com/containers/image/v5/transports/alltransports"
	"github.com/containers/image/v5/types"
	"github.com/sirupsen/logrus"
)

// ErrFileNotFound is returned by Image.ReadFile when no layer holds the file.
var ErrFileNotFound = errors.New("file not found in image")

const (
	defaultMaxLayers   = 128
	defaultMaxFileSize = 256 * 1024 * 1024
	maxLinkDepth       = 8
)

// Source opens images by reference.
type Source interface {
	Open(ctx context.Context, ref string) (Image, error)
	Exists(ctx context.Context, ref string) error
}

// Image is an opened image. It is never instantiated as a container; labels
// and files are read straight from its config and layers.
type Image interface {
	Labels(ctx context.Context) (map[string]string, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Close() error
}

// RegistrySource reads images through containers/image transports.
type RegistrySource struct {
	systemContext *types.SystemContext
	maxLayers     int
	maxFileSize   int64
	log           logrus.FieldLogger
}

// Option configures a RegistrySource.
type Option func(*RegistrySource)

// WithTLSVerify toggles TLS verification against docker registries.
func WithTLSVerify(verify bool) Option {
	return func(rs *RegistrySource) {
		rs.systemContext.DockerInsecureSkipTLSVerify = types.NewOptionalBool(!verify)
	}
}

// WithLogger sets the logger used for non-fatal layer problems.
func WithLogger(log logrus.FieldLogger) Option {
	return func(rs *RegistrySource) {
		rs.log = log
	}
}

// NewRegistrySource creates a RegistrySource with TLS verification on.
func NewRegistrySource(opts ...Option) *RegistrySource {
	rs := &RegistrySource{
		systemContext: &types.SystemContext{},
		maxLayers:     defaultMaxLayers,
		maxFileSize:   defaultMaxFileSize,
		log:           logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

// transportName adds the docker:// transport to references that carry none.
func transportName(ref string) string {
	if strings.Contains(ref, "://") || hasTransportPrefix(ref) {
		return ref
	}
	return "docker://" + ref
}

func hasTransportPrefix(ref string) bool {
	for _, prefix := range []string{"containers-storage:", "oci:", "oci-archive:", "docker-archive:", "docker-daemon:", "dir:"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}

// Open parses ref and prepares the image for reading.
func (rs *RegistrySource) Open(ctx context.Context, ref string) (Image, error) {
	imgRef, err := alltransports.ParseImageName(transportName(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to parse image reference %q: %w", ref, err)
	}

	src, err := imgRef.NewImageSource(ctx, rs.systemContext)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", ref, err)
	}

	img, err := imgRef.NewImage(ctx, rs.systemContext)
	if err != nil {
		if closeErr := src.Close(); closeErr != nil {
			rs.log.WithError(closeErr).Warn("failed to close image source")
		}
		return nil, fmt.Errorf("failed to read image %s: %w", ref, err)
	}

	return &registryImage{
		ref:    ref,
		src:    src,
		img:    img,
		cache:  memory.New(),
		source: rs,
	}, nil
}

// Exists checks that the manifest of ref can be fetched.
func (rs *RegistrySource) Exists(ctx context.Context, ref string) error {
	imgRef, err := alltransports.ParseImageName(transportName(ref))
	if err != nil {
		return fmt.Errorf("failed to parse image reference %q: %w", ref, err)
	}
	src, err := imgRef.NewImageSource(ctx, rs.systemContext)
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", ref, err)
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			rs.log.WithError(closeErr).Warn("failed to close image source")
		}
	}()

	if _, _, err := src.GetManifest(ctx, nil); err != nil {
		return fmt.Errorf("failed to fetch manifest for %s: %w", ref, err)
	}
	return nil
}

type registryImage struct {
	ref    string
	src    types.ImageSource
	img    types.ImageCloser
	cache  types.BlobInfoCache
	source *RegistrySource
}

func (ri *registryImage) Labels(ctx context.Context) (map[string]string, error) {
	info, err := ri.img.Inspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image %s: %w", ri.ref, err)
	}
	if info.Labels == nil {
		return map[string]string{}, nil
	}
	return info.Labels, nil
}

// ReadFile returns the content of path as seen by a container started from
// the image. Whiteouts are honoured and symbolic and hard links are followed
// inside the image.
func (ri *registryImage) ReadFile(ctx context.Context, path string) ([]byte, error) {
	layers := ri.img.LayerInfos()
	if len(layers) == 0 {
		return nil, fmt.Errorf("image %s has no layers", ri.ref)
	}
	if len(layers) > ri.source.maxLayers {
		return nil, fmt.Errorf("image %s has %d layers, exceeds maximum of %d", ri.ref, len(layers), ri.source.maxLayers)
	}

	open := func(ctx context.Context, i int) (io.ReadCloser, error) {
		blob, _, err := ri.src.GetBlob(ctx, layers[i], ri.cache)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch blob %s: %w", layers[i].Digest, err)
		}
		stream, _, err := compression.AutoDecompress(blob)
		if err != nil {
			ri.closeBlob(blob)
			return nil, fmt.Errorf("failed to decompress blob %s: %w", layers[i].Digest, err)
		}
		return &layerStream{ReadCloser: stream, blob: blob, log: ri.source.log}, nil
	}

	data, err := readFromLayers(ctx, len(layers), open, path, ri.source.maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ri.ref, err)
	}
	return data, nil
}

func (ri *registryImage) closeBlob(blob io.Closer) {
	if err := blob.Close(); err != nil {
		ri.source.log.WithError(err).Warn("failed to close layer blob")
	}
}

// layerStream closes the decompressed stream and the blob under it.
type layerStream struct {
	io.ReadCloser
	blob io.Closer
	log  logrus.FieldLogger
}

func (ls *layerStream) Close() error {
	if err := ls.ReadCloser.Close(); err != nil {
		ls.log.WithError(err).Warn("failed to close layer stream")
	}
	return ls.blob.Close()
}

func (ri *registryImage) Close() error {
	var errs []error
	if err := ri.img.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := ri.src.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
