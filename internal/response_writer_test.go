package internal_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arbor/internal"
)

// brokenWriter fails every body write, like a peer that went away.
type brokenWriter struct {
	*httptest.ResponseRecorder
	writes int
}

var errBrokenPipe = errors.New("broken pipe")

func (w *brokenWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, errBrokenPipe
}

func TestResponseWriter_WriteHeaderOnce(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	rw := internal.NewResponseWriter(w)
	require.False(t, rw.Written())

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusNotFound)

	require.True(t, rw.Written())
	require.Equal(t, http.StatusAccepted, rw.Status())
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestResponseWriter_Write(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	rw := internal.NewResponseWriter(w)
	rw.Header().Set("X-Test", "value")

	n, err := rw.Write([]byte("hello "))
	require.NoError(t, err)
	require.Equal(t, 6, n)
	_, err = rw.Write([]byte("world"))
	require.NoError(t, err)

	require.Equal(t, int64(11), rw.Size())
	require.Equal(t, http.StatusOK, rw.Status())
	require.Equal(t, "hello world", w.Body.String())
	require.Equal(t, "value", w.Header().Get("X-Test"))
	require.NoError(t, rw.Err())
}

func TestResponseWriter_KeepsFirstWriteError(t *testing.T) {
	t.Parallel()

	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder()}
	rw := internal.NewResponseWriter(w)

	_, err := rw.Write([]byte("a"))
	require.ErrorIs(t, err, errBrokenPipe)
	_, err = rw.Write([]byte("b"))
	require.ErrorIs(t, err, errBrokenPipe)

	require.Equal(t, 1, w.writes)
	require.Zero(t, rw.Size())
	require.ErrorIs(t, rw.Err(), errBrokenPipe)
}

func TestResponseWriter_Passthrough(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	rw := internal.NewResponseWriter(w)

	rw.Flush()
	require.True(t, w.Flushed)

	_, _, err := rw.Hijack()
	require.ErrorIs(t, err, http.ErrNotSupported)

	require.Same(t, w, rw.Unwrap())
}
