package bundled

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypes(t *testing.T) {
	assert.Equal(t, []string{"date", "file", "schedule", "time"}, Types())
}

func TestNewEachType(t *testing.T) {
	opts := Options{FilesRoot: t.TempDir(), Zone: "UTC"}
	for _, capType := range Types() {
		t.Run(capType, func(t *testing.T) {
			p, err := New(capType, opts)
			require.NoError(t, err)

			got, err := p.ServiceType(context.Background())
			require.NoError(t, err)
			assert.Equal(t, capType, got)
		})
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New("weather", Options{})
	assert.ErrorContains(t, err, `unknown provider "weather"`)

	_, err = New("time", Options{Zone: "Not/AZone"})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New("file", Options{FilesRoot: file})
	assert.ErrorContains(t, err, "is not a directory")
}
