package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pos-waiter/internal/model"
)

func TestFileStoreRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	var s string
	found, err := fs.Get(ctx, KeyServerAddress, &s)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, fs.Set(ctx, KeyServerAddress, "http://192.168.1.100:4000"))
	found, err = fs.Get(ctx, KeyServerAddress, &s)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "http://192.168.1.100:4000", s)

	require.NoError(t, fs.Delete(ctx, KeyServerAddress))
	require.NoError(t, fs.Delete(ctx, KeyServerAddress))
	found, err = fs.Get(ctx, KeyServerAddress, &s)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.ErrorIs(t, fs.Set(context.Background(), "../escape", 1), ErrInvalidKey)
	assert.ErrorIs(t, fs.Delete(context.Background(), ""), ErrInvalidKey)
}

func TestFileStoreCorruptValue(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyWaiterSession+".json"), []byte("{"), 0o600))

	_, err = Local{S: fs}.Session(context.Background())
	assert.Error(t, err)
}

func TestLocalKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	for name, s := range map[string]Store{"memory": NewMemory(), "file": mustFileStore(t)} {
		t.Run(name, func(t *testing.T) {
			l := Local{S: s}
			sess := model.WaiterSession{WaiterID: 1, WaiterName: "Ali", AccessToken: "tok", LastCheckin: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)}

			require.NoError(t, l.SetAddress(ctx, "http://10.0.0.2:4000"))
			require.NoError(t, l.SetToken(ctx, "tok"))
			require.NoError(t, l.SetSession(ctx, sess))
			require.NoError(t, l.SetTheme(ctx, "dark"))

			require.NoError(t, l.ClearSession(ctx))
			require.NoError(t, l.ClearToken(ctx))

			got, err := l.Session(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
			tok, _ := l.Token(ctx)
			assert.Empty(t, tok)
			addr, _ := l.Address(ctx)
			assert.Equal(t, "http://10.0.0.2:4000", addr)
			theme, _ := l.Theme(ctx)
			assert.Equal(t, "dark", theme)

			require.NoError(t, l.SetSession(ctx, sess))
			got, err = l.Session(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "Ali", got.WaiterName)
			assert.True(t, sess.LastCheckin.Equal(got.LastCheckin))
		})
	}
}

func mustFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return fs
}
