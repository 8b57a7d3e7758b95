package selector

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSelector struct {
	answer string
	err    error
	calls  int
}

func (r *recordingSelector) Select(_ string, _ []string) (string, error) {
	r.calls++
	return r.answer, r.err
}

func TestChooseSingleOptionDoesNotPrompt(t *testing.T) {
	rec := &recordingSelector{answer: "other"}

	got, err := Choose(rec, "bundle", []string{"op.v1.2.3"})
	require.NoError(t, err)
	assert.Equal(t, "op.v1.2.3", got)
	assert.Zero(t, rec.calls)
}

func TestChoosePromptsForSeveralOptions(t *testing.T) {
	rec := &recordingSelector{answer: "b"}

	got, err := Choose(rec, "channel", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", got)
	assert.Equal(t, 1, rec.calls)
}

func TestChooseErrors(t *testing.T) {
	_, err := Choose(&recordingSelector{}, "channel", nil)
	assert.Error(t, err)

	_, err = Choose(&recordingSelector{answer: ""}, "channel", []string{"a", "b"})
	assert.ErrorIs(t, err, ErrNoSelection)

	boom := errors.New("interrupted")
	_, err = Choose(&recordingSelector{err: boom}, "channel", []string{"a", "b"})
	assert.ErrorIs(t, err, boom)
}

func TestStatic(t *testing.T) {
	got, err := Static{Value: "b"}.Select("channel", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	_, err = Static{Value: "c"}.Select("channel", []string{"a", "b"})
	assert.ErrorIs(t, err, ErrNotAnOption)

	_, err = Static{}.Select("channel", []string{"a", "b"})
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestInteractiveRequiresTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	_, err = Interactive{Input: r}.Select("Select a channel", []string{"a", "b"})
	assert.ErrorIs(t, err, ErrNotTerminal)
	assert.Equal(t, "/dev/stdout", os.Stdout.Name())
}
