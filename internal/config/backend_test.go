package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSourceAndSinkFileBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.dat")
	require.NoError(t, os.WriteFile(path, []byte("hello virtual file"), 0o644))

	cfg := GetDefaultConfig()
	cfg.VirtualFiles = map[string]VirtualFileConfig{
		"VF.TEST": {Backend: "file", Path: path},
	}

	source, err := cfg.OpenSource(context.Background(), "VF.TEST")
	require.NoError(t, err)
	defer source.Close()
	size, known := source.Size()
	assert.True(t, known)
	assert.EqualValues(t, len("hello virtual file"), size)

	sinkPath := filepath.Join(dir, "out.dat")
	cfg.VirtualFiles["VF.OUT"] = VirtualFileConfig{Backend: "file", Path: sinkPath}
	sink, err := cfg.OpenSink(context.Background(), "VF.OUT", 0)
	require.NoError(t, err)
	_, err = sink.Write([]byte("written"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(sinkPath)
	require.NoError(t, err)
	assert.Equal(t, "written", string(data))
}

func TestOpenSourceUnknownVirtualFile(t *testing.T) {
	cfg := GetDefaultConfig()
	_, err := cfg.OpenSource(context.Background(), "VF.MISSING")
	assert.Error(t, err)
}

func TestOpenSinkResumeSeeksPastExistingBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resume.dat")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	cfg := GetDefaultConfig()
	cfg.VirtualFiles = map[string]VirtualFileConfig{
		"VF.RESUME": {Backend: "file", Path: path},
	}

	sink, err := cfg.OpenSink(context.Background(), "VF.RESUME", 5)
	require.NoError(t, err)
	_, err = sink.Write([]byte("ABCDE"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "01234ABCDE", string(data))
}
