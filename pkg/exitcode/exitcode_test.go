package exitcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeContract(t *testing.T) {
	assert.Equal(t, 0, Success)
	assert.Equal(t, 1, BuildFailed)
	assert.Equal(t, 2, NothingToPublish)
	assert.Equal(t, 3, ManifestInvalid)
	assert.Equal(t, 5, ManifestParse)
	assert.Equal(t, BuildFailed, GeneralError)
}

func TestString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{Success, "Success"},
		{BuildFailed, "Build failed"},
		{NothingToPublish, "Nothing to publish"},
		{ManifestInvalid, "Invalid manifest"},
		{PersistError, "Manifest persistence error"},
		{ManifestParse, "Manifest parse error"},
		{FontUnavailable, "Required font unavailable"},
		{TimeoutError, "Typesetter timeout"},
		{ToolNotFound, "Tool not found"},
		{42, "Unknown error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, String(tt.code))
	}
}
