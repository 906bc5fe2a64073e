package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "crummey/pkg/domain-errors"
)

func TestGenerate(t *testing.T) {
	token, err := Generate()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, tokenBytes)

	other, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("webhook-secret")
	require.NoError(t, err)

	require.NoError(t, Verify("webhook-secret", hash))

	err = Verify("wrong", hash)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = Hash("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}
