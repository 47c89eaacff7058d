package index

import (
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

func TestRunLock_RejectsSecondRunInProcess(t *testing.T) {
	l := NewRunLock(t.TempDir())

	release, err := l.TryAcquire("code_chunks_a", "/p")
	require.NoError(t, err)
	assert.True(t, l.Held("code_chunks_a"))

	_, err = l.TryAcquire("code_chunks_a", "/p")
	assert.True(t, errors.Is(err, errors.ErrCodeIndexBusy))

	// Other projects are independent.
	other, err := l.TryAcquire("code_chunks_b", "/q")
	require.NoError(t, err)
	other()

	release()
	release()
	assert.False(t, l.Held("code_chunks_a"))

	again, err := l.TryAcquire("code_chunks_a", "/p")
	require.NoError(t, err)
	again()
}

func TestRunLock_RejectsWhenFileLockedElsewhere(t *testing.T) {
	// Given another holder of the lock file
	l := NewRunLock(t.TempDir())
	external := flock.New(l.Path("code_chunks_a"))
	ok, err := external.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = external.Unlock() }()

	// When this process tries to run
	_, err = l.TryAcquire("code_chunks_a", "/p")

	// Then it is busy
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIndexBusy, errors.GetCode(err))
}
