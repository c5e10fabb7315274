package target

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAsset_NameTemplate(t *testing.T) {
	cases := []struct {
		name   string
		target Target
		want   string
	}{
		{
			"linux",
			Target{OS: "linux", Arch: "amd64", Suffix: "linux-amd64"},
			"yuanbao-chat2api-v1.2.3-linux-amd64",
		},
		{
			"windows ext",
			Target{OS: "windows", Arch: "amd64", Suffix: "windows-amd64", Ext: ".exe"},
			"yuanbao-chat2api-v1.2.3-windows-amd64.exe",
		},
		{
			"darwin arm64",
			Target{OS: "darwin", Arch: "arm64", Suffix: "darwin-arm64"},
			"yuanbao-chat2api-v1.2.3-darwin-arm64",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := DeriveAsset("yuanbao-chat2api", "v1.2.3", "dist", tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, a.Name)
			assert.Equal(t, filepath.Join("dist", tc.want), a.Path)
		})
	}
}

func TestDeriveAsset_EmptyBinaryIsFatal(t *testing.T) {
	_, err := DeriveAsset("", "v1.0.0", "dist", Target{OS: "linux", Arch: "amd64", Suffix: "linux-amd64"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binary name is empty")

	_, err = DeriveAsset("  ", "v1.0.0", "dist", Target{OS: "linux", Arch: "amd64", Suffix: "linux-amd64"})
	require.Error(t, err)
}

func TestDeriveAsset_EmptyTagIsFatal(t *testing.T) {
	_, err := DeriveAsset("app", "", "dist", Target{OS: "linux", Arch: "amd64", Suffix: "linux-amd64"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tag is empty")
}
