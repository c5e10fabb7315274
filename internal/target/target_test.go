package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatrix_FourEntries(t *testing.T) {
	m := DefaultMatrix()
	require.Len(t, m, 4)
	require.NoError(t, ValidateMatrix(m))

	var windows *Target
	for i := range m {
		if m[i].OS == "windows" {
			windows = &m[i]
		}
	}
	require.NotNil(t, windows, "matrix must include a windows entry")
	assert.Equal(t, ".exe", windows.Ext)
}

func TestValidateMatrix_RejectsDuplicateSuffix(t *testing.T) {
	m := []Target{
		{OS: "linux", Arch: "amd64", Suffix: "linux-amd64"},
		{OS: "linux", Arch: "arm64", Suffix: "linux-amd64"},
	}
	err := ValidateMatrix(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate target suffix")
}

func TestValidateMatrix_RejectsEmpty(t *testing.T) {
	require.Error(t, ValidateMatrix(nil))
}

func TestTarget_Validate(t *testing.T) {
	cases := []struct {
		name    string
		in      Target
		wantErr string
	}{
		{"ok", Target{OS: "linux", Arch: "amd64", Suffix: "linux-amd64"}, ""},
		{"missing os", Target{Arch: "amd64", Suffix: "s"}, "os is required"},
		{"missing arch", Target{OS: "linux", Suffix: "s"}, "arch is required"},
		{"missing suffix", Target{OS: "linux", Arch: "amd64"}, "suffix is required"},
		{"bad ext", Target{OS: "windows", Arch: "amd64", Suffix: "w", Ext: "exe"}, "must start with a dot"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSortMatrix_DeterministicOrder(t *testing.T) {
	m := []Target{
		{OS: "windows", Arch: "amd64", Suffix: "windows-amd64", Ext: ".exe"},
		{OS: "linux", Arch: "amd64", Suffix: "linux-amd64"},
	}
	sorted := SortMatrix(m)
	assert.Equal(t, "linux-amd64", sorted[0].Suffix)
	assert.Equal(t, "windows-amd64", sorted[1].Suffix)
	// Input order is preserved.
	assert.Equal(t, "windows-amd64", m[0].Suffix)
}
