package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openshift-pipelines/index-info/pkg/image"
)

type fakeImage struct {
	labels    map[string]string
	labelsErr error
	files     map[string]string
	fileErr   error
}

type fakeSource struct {
	mu     sync.Mutex
	images map[string]fakeImage
	opened []string
}

func (f *fakeSource) Open(_ context.Context, ref string) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, ref)
	img, ok := f.images[ref]
	if !ok {
		return nil, fmt.Errorf("manifest unknown: %s", ref)
	}
	return &img, nil
}

func (f *fakeSource) Exists(_ context.Context, ref string) error {
	if _, ok := f.images[ref]; !ok {
		return errors.New("manifest unknown")
	}
	return nil
}

func (f *fakeImage) Labels(context.Context) (map[string]string, error) {
	return f.labels, f.labelsErr
}

func (f *fakeImage) ReadFile(_ context.Context, path string) ([]byte, error) {
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, image.ErrFileNotFound)
	}
	return []byte(data), nil
}

func (f *fakeImage) Close() error { return nil }

type fakeProvenance struct {
	repo, commit string
	err          error
}

func (f fakeProvenance) SourceCommit(context.Context, string) (string, string, error) {
	return f.repo, f.commit, f.err
}

type mapMirrors map[string]string

func (m mapMirrors) Resolve(ref string) string {
	if mirrored, ok := m[ref]; ok {
		return mirrored
	}
	return ref
}
