package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	info, err := st.Put(ctx, "alice/report.pdf", strings.NewReader("%PDF-1.4"), PutObjectOptions{Size: -1, ContentType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size)

	rc, got, err := st.Get(ctx, "alice/report.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(body))
	assert.Equal(t, int64(8), got.Size)

	_, err = st.Put(ctx, "alice/report.pdf", strings.NewReader("v2"), PutObjectOptions{Size: 2})
	require.NoError(t, err)
	rc, _, err = st.Get(ctx, "alice/report.pdf")
	require.NoError(t, err)
	body, _ = io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "v2", string(body))

	stat, err := st.Stat(ctx, "alice/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stat.Size)

	require.NoError(t, st.Delete(ctx, "alice/report.pdf"))
	require.NoError(t, st.Delete(ctx, "alice/report.pdf"))

	_, err = st.Stat(ctx, "alice/report.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = st.Get(ctx, "alice/report.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "/abs/file.pdf", ".."} {
		_, err := st.Put(context.Background(), key, strings.NewReader("x"), PutObjectOptions{Size: 1})
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalStorage_PresignUnsupported(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = st.PresignGet(context.Background(), "a.pdf", time.Hour)
	assert.ErrorIs(t, err, ErrPresignUnsupported)
}
