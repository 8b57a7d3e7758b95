package image

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/containerd/containerd/archive"
	securejoin "github.com/cyphar/filepath-securejoin"
)

const (
	whiteoutPrefix = ".wh."
	whiteoutOpaque = ".wh..wh..opq"
)

// layerOpener returns the uncompressed tar stream of layer i, lowest first.
type layerOpener func(ctx context.Context, i int) (io.ReadCloser, error)

// cleanPath turns an absolute or relative path into the form used by layer
// tar entries: no leading slash, no "." or ".." elements.
func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// readFromLayers returns the content of target as seen by a container of
// the image. Only the entries on the way to target are unpacked. When links
// lead outside of them the layers are unpacked again with the link targets
// added.
func readFromLayers(ctx context.Context, layers int, open layerOpener, target string, maxSize int64) ([]byte, error) {
	wanted := []string{cleanPath(target)}
	for depth := 0; depth < maxLinkDepth; depth++ {
		data, more, err := unpackAndRead(ctx, layers, open, target, wanted, maxSize)
		if err != nil || len(more) == 0 {
			return data, err
		}
		wanted = append(wanted, more...)
	}
	return nil, fmt.Errorf("%s: too many levels of links", target)
}

// unpackAndRead applies the layers filtered to wanted into a temporary root
// and reads target from it. more lists the paths target resolves through
// that were not unpacked.
func unpackAndRead(ctx context.Context, layers int, open layerOpener, target string, wanted []string, maxSize int64) (data []byte, more []string, err error) {
	root, err := os.MkdirTemp("", "index-info-layers-")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create unpack directory: %w", err)
	}
	defer func() {
		err = errors.Join(err, os.RemoveAll(root))
	}()

	filter := newPathFilter(wanted, maxSize)
	for i := 0; i < layers; i++ {
		if err := applyLayer(ctx, root, i, open, filter); err != nil {
			return nil, nil, err
		}
	}

	resolved, err := securejoin.SecureJoin(root, target)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve %s: %w", target, err)
	}
	info, err := os.Stat(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		rel, relErr := filepath.Rel(root, resolved)
		if relErr != nil {
			return nil, nil, fmt.Errorf("failed to resolve %s: %w", target, relErr)
		}
		if rel = filepath.ToSlash(rel); !filter.covers(rel) {
			return nil, []string{rel}, nil
		}
		if len(filter.links) > 0 {
			return nil, filter.links, nil
		}
		return nil, nil, fmt.Errorf("%s: %w", target, ErrFileNotFound)
	case err != nil:
		return nil, nil, fmt.Errorf("failed to stat %s: %w", target, err)
	case !info.Mode().IsRegular():
		return nil, nil, fmt.Errorf("%s is not a regular file", target)
	case info.Size() > maxSize:
		return nil, nil, fmt.Errorf("file %s too large: %d bytes exceeds maximum of %d bytes", target, info.Size(), maxSize)
	}

	data, err = os.ReadFile(resolved)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", target, err)
	}
	return data, nil, nil
}

func applyLayer(ctx context.Context, root string, i int, open layerOpener, filter *pathFilter) error {
	layer, err := open(ctx, i)
	if err != nil {
		return fmt.Errorf("layer %d: %w", i, err)
	}
	defer layer.Close()

	if _, err := archive.Apply(ctx, root, layer, archive.WithFilter(filter.keep)); err != nil {
		return fmt.Errorf("error applying layer %d: %w", i, err)
	}
	return nil
}

// pathFilter keeps the tar entries that lie on the way to, or under, one of
// the wanted paths, including whiteouts hiding them. Ownership is forced to
// the current user so the unpacked tree can be read and removed.
type pathFilter struct {
	wanted  []string
	maxSize int64
	uid     int
	gid     int
	// links holds hard link targets skipped because they were not wanted.
	links []string
}

func newPathFilter(wanted []string, maxSize int64) *pathFilter {
	return &pathFilter{
		wanted:  wanted,
		maxSize: maxSize,
		uid:     os.Getuid(),
		gid:     os.Getgid(),
	}
}

func (f *pathFilter) keep(h *tar.Header) (bool, error) {
	name := cleanPath(h.Name)
	dir, base := path.Split(name)
	dir = strings.TrimSuffix(dir, "/")

	subject := name
	switch {
	case base == whiteoutOpaque:
		subject = dir
	case strings.HasPrefix(base, whiteoutPrefix):
		subject = path.Join(dir, strings.TrimPrefix(base, whiteoutPrefix))
	}
	if !f.related(subject) {
		return false, nil
	}

	switch h.Typeflag {
	case tar.TypeLink:
		if target := cleanPath(h.Linkname); !f.covers(target) {
			f.links = append(f.links, target)
			return false, nil
		}
	case tar.TypeReg:
		if h.Size > f.maxSize {
			return false, fmt.Errorf("file %s too large: %d bytes exceeds maximum of %d bytes", name, h.Size, f.maxSize)
		}
	}

	h.Uid = f.uid
	h.Gid = f.gid
	h.Mode |= 0700
	return true, nil
}

// related reports whether p is a wanted path, one of its parents or lies
// under one.
func (f *pathFilter) related(p string) bool {
	for _, w := range f.wanted {
		if p == w || isAncestor(p, w) || isAncestor(w, p) {
			return true
		}
	}
	return false
}

// covers reports whether p is unpacked by the filter.
func (f *pathFilter) covers(p string) bool {
	for _, w := range f.wanted {
		if p == w || isAncestor(w, p) {
			return true
		}
	}
	return false
}

// isAncestor reports whether dir is a parent directory of p.
func isAncestor(dir, p string) bool {
	if dir == "" {
		return p != ""
	}
	return strings.HasPrefix(p, dir+"/")
}
