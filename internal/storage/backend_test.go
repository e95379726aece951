package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeDimension(t *testing.T) {
	cases := map[string]string{
		"minecraft:overworld":  "overworld",
		"minecraft:the_nether": "the_nether",
		"overworld":            "overworld",
		"mod:Sky/Islands":      "Sky_Islands",
		"Overworld":            "Overworld",
		"../../etc":            ".._.._etc",
		"..":                   "_",
		"":                     "_",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeDimension(in), "input %q", in)
	}
}

// exerciseBackend общий сценарий для всех реализаций Backend
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, err := b.Read(ctx, "minecraft:overworld")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Write(ctx, "minecraft:overworld", []byte{1, 2, 3}))
	data, err := b.Read(ctx, "minecraft:overworld")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	// Перезапись полностью заменяет предыдущие данные
	require.NoError(t, b.Write(ctx, "minecraft:overworld", []byte{9}))
	data, err = b.Read(ctx, "minecraft:overworld")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, data)

	_, err = b.Read(ctx, "minecraft:the_end")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	fb := NewFileBackend(DirResolver(dir))
	exerciseBackend(t, fb)

	path, err := fb.Path("minecraft:overworld")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DataDirName, "overworld.dat"), path)

	// Временные файлы не остаются после успешной записи
	entries, err := os.ReadDir(filepath.Join(dir, DataDirName))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "overworld.dat", entries[0].Name())
}

func TestFileBackendWithoutWorldDir(t *testing.T) {
	fb := NewFileBackend(DirResolver(""))
	_, err := fb.Read(context.Background(), "overworld")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend())
}

func TestBadgerBackend(t *testing.T) {
	bb, err := NewBadgerBackend(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer bb.Close()

	exerciseBackend(t, bb)

	require.NoError(t, bb.Close())
	_, err = bb.Read(context.Background(), "overworld")
	assert.Error(t, err)
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("ACTIVITY_TEST_REDIS")
	if addr == "" {
		t.Skip("ACTIVITY_TEST_REDIS не задан")
	}

	rb, err := NewRedisBackend(&RedisConfig{Addr: addr, KeyPrefix: "chunk_activity_test:" + t.Name() + ":"})
	require.NoError(t, err)
	defer rb.Close()

	exerciseBackend(t, rb)
}

func TestOpen(t *testing.T) {
	b, err := Open(Options{WorldDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "file", b.Name())

	b, err = Open(Options{Kind: KindMemory})
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Name())

	_, err = Open(Options{Kind: "s3"})
	assert.Error(t, err)
}

func TestOpenBadgerWithoutDir(t *testing.T) {
	b, err := Open(Options{Kind: KindBadger})
	require.Error(t, err)
	assert.Nil(t, b)
	assert.Contains(t, err.Error(), "каталог мира не задан")

	dir := t.TempDir()
	b, err = Open(Options{Kind: KindBadger, WorldDir: dir})
	require.NoError(t, err)
	defer b.Close()
	assert.DirExists(t, filepath.Join(dir, "chunk_activity_db"))
}
