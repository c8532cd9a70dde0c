package ids_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shipyard-dev/harbor/pkg/ids"
)

func TestShort(t *testing.T) {
	assert.Equal(t, "a3f8e2b1", ids.Short("a3f8e2b1-4c5d-6e7f-8a9b-0c1d2e3f4a5b"))
	assert.Equal(t, "abc", ids.Short("abc"))
	assert.Equal(t, "abcdef12", ids.Short("ab-cd-ef-12"))
	assert.Equal(t, "", ids.Short(""))
}
