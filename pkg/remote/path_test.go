package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePath(t *testing.T) {
	valid := []string{
		"file.txt",
		"docs/report.pdf",
		"deep/nested/dir/item",
		"with spaces/and-dashes.txt",
		"..hidden-but-legal",
	}
	for _, p := range valid {
		assert.NoError(t, ValidatePath(p), "path %q", p)
	}

	invalid := []string{
		"",
		"/absolute",
		"trailing/",
		"..",
		"../sibling",
		"inner/../../escape",
		"redundant//slash",
		"self/./reference",
	}
	for _, p := range invalid {
		assert.ErrorIs(t, ValidatePath(p), ErrInvalidPath, "path %q", p)
	}
}
