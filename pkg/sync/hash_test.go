package sync

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	// echo -n "hello" | md5sum
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", Hash("hello"))
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Hash(""))
}

func TestCheckIntegrity(t *testing.T) {
	contents := []string{"", "a", "function foo() {}\n", "line one\nline two\n", "ünïcödé"}
	for _, content := range contents {
		assert.True(t, CheckIntegrity(Hash(content), content), content)
		assert.False(t, CheckIntegrity(Hash(content), content+" "), content)
	}
}

func TestNormalizeLineEndings(t *testing.T) {
	assert.Equal(t, "a\nb\n", NormalizeLineEndings("a\r\nb\r\n"))
	assert.Equal(t, "a\nb", NormalizeLineEndings("a\nb"))

	// Lone carriage returns aren't line endings.
	assert.Equal(t, "a\rb", NormalizeLineEndings("a\rb"))
}

func TestHashFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/crlf", []byte("a\r\nb\r\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/lf", []byte("a\nb\n"), 0644))

	crlfHash, err := HashFile(fs, "/crlf")
	assert.NoError(t, err)

	lfHash, err := HashFile(fs, "/lf")
	assert.NoError(t, err)
	assert.Equal(t, lfHash, crlfHash)
	assert.Equal(t, Hash("a\nb\n"), lfHash)

	_, err = HashFile(fs, "/missing")
	assert.Error(t, err)
}
