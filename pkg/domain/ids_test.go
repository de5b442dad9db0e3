package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gatekeeper/pkg/domain-errors"
)

func TestParseTenantID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTenantID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseTenantID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseTenantID("00000000-0000-0000-0000-000000000000")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("accepts valid UUID and round-trips", func(t *testing.T) {
		raw := uuid.NewString()
		tenantID, err := ParseTenantID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, tenantID.String())
		assert.False(t, tenantID.IsNil())
	})
}

func TestTenantID_IsNil(t *testing.T) {
	assert.True(t, TenantID{}.IsNil())
	assert.False(t, TenantID(uuid.New()).IsNil())
}
