package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/openshift-pipelines/index-info/pkg/github"
	"github.com/openshift-pipelines/index-info/pkg/image"
)

type fakeImage struct {
	labels map[string]string
	files  map[string]string
}

func (f *fakeImage) Labels(context.Context) (map[string]string, error) {
	return f.labels, nil
}

func (f *fakeImage) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, image.ErrFileNotFound)
	}
	return []byte(data), nil
}

func (f *fakeImage) Close() error { return nil }

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

// failingSelector fails the test when a prompt is shown.
type failingSelector struct{ t *testing.T }

func (s failingSelector) Select(prompt string, options []string) (string, error) {
	s.t.Errorf("unexpected prompt %q with options %v", prompt, options)
	return "", errors.New("unexpected prompt")
}

// scriptedSelector answers prompts in order and records them.
type scriptedSelector struct {
	answers []string
	prompts []string
	options [][]string
}

func (s *scriptedSelector) Select(prompt string, options []string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	s.options = append(s.options, options)
	if len(s.answers) == 0 {
		return "", nil
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}

type fakeCommits struct {
	commits map[string][]github.Commit
	err     map[string]error
}

func (f fakeCommits) CompareURL(repo, base, head string) string {
	return fmt.Sprintf("https://api.github.com/repos/%s/compare/%s...%s", repo, base, head)
}

func (f fakeCommits) Commits(_ context.Context, repo, base, head string) ([]github.Commit, error) {
	if err := f.err[repo]; err != nil {
		return nil, err
	}
	return f.commits[repo], nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
