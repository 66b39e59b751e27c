package fsprovider

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/psanford/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/go-modelcontext/capability"
)

func newTestFS(t *testing.T) *memfs.FS {
	t.Helper()
	testFS := memfs.New()
	require.NoError(t, testFS.WriteFile("file1.txt", []byte("content1"), 0o644))
	require.NoError(t, testFS.WriteFile("file2.go", []byte("package main"), 0o644))
	require.NoError(t, testFS.MkdirAll("subdir", 0o755))
	require.NoError(t, testFS.WriteFile("subdir/nested.txt", []byte("nested content"), 0o644))
	return testFS
}

func TestReadDir(t *testing.T) {
	t.Parallel()
	testFS := newTestFS(t)

	result, err := ReadDir(testFS, ReadDirRequest{})
	require.NoError(t, err)
	assert.Len(t, result.Files, 3)

	foundFile1 := false
	foundSubdir := false
	for _, f := range result.Files {
		switch f.Name {
		case "file1.txt":
			foundFile1 = true
			assert.False(t, f.IsDir)
			assert.Equal(t, int64(8), f.Size) // "content1"
		case "subdir":
			foundSubdir = true
			assert.True(t, f.IsDir)
		}
	}
	assert.True(t, foundFile1)
	assert.True(t, foundSubdir)

	result, err = ReadDir(testFS, ReadDirRequest{Path: "/subdir/"})
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "nested.txt", result.Files[0].Name)
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	testFS := newTestFS(t)

	result, err := ReadFile(testFS, ReadFileRequest{FileName: "subdir/nested.txt"})
	require.NoError(t, err)
	assert.Equal(t, "nested content", result.Content)

	_, err = ReadFile(testFS, ReadFileRequest{FileName: "nonexistent.txt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestPathCleaning(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":                 ".",
		"/":                ".",
		".":                ".",
		"/file1.txt":       "file1.txt",
		"../../etc/passwd": "etc/passwd",
		"subdir/../a.txt":  "a.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanPath(in), in)
	}
}

func TestTools(t *testing.T) {
	t.Parallel()
	p := New(newTestFS(t))
	ctx := context.Background()

	got, err := p.CallTool(ctx, "read_file", `{"fileName":"file1.txt"}`)
	require.NoError(t, err)
	assert.Equal(t, []capability.Content{capability.TextContent("content1")}, got)

	got, err = p.CallTool(ctx, "read_file", `{"fileName":"missing.txt"}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsError)

	got, err = p.CallTool(ctx, "read_dir", `{}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	var listing ReadDirResult
	require.NoError(t, json.Unmarshal([]byte(got[0].Payload), &listing))
	assert.Len(t, listing.Files, 3)
}

func TestResources(t *testing.T) {
	t.Parallel()
	p := New(newTestFS(t))
	ctx := context.Background()

	resources, err := p.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 2)
	uris := []string{resources[0].URI, resources[1].URI}
	assert.ElementsMatch(t, []string{"file:///file1.txt", "file:///file2.go"}, uris)

	got, err := p.ReadResource(ctx, "file:///file1.txt")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsError)
	assert.Equal(t, "content1", got[0].Payload)
	assert.Contains(t, got[0].MIMEType, "text/plain")

	got, err = p.ReadResource(ctx, "date://current")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsError)

	ok, err := p.HasCapability(ctx, capability.CapabilityResources)
	require.NoError(t, err)
	assert.True(t, ok)

	empty := New(memfs.New())
	ok, err = empty.HasCapability(ctx, capability.CapabilityResources)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCalculate(t *testing.T) {
	t.Parallel()
	p := New(newTestFS(t))

	got, err := p.Calculate(context.Background(), "file2.go")
	require.NoError(t, err)
	assert.Equal(t, "package main", got)
}
