package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedChain(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("fetch groups for Unified: %w", Wrap(KindTransport, "gateway.fetchGroups", base))

	assert.Equal(t, KindTransport, KindOf(err))
	assert.True(t, Is(err, KindTransport))
	assert.False(t, Is(err, KindModel))
	assert.ErrorIs(t, err, base)
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(KindParse, "op", nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindUnknown))
}

func TestErrorString(t *testing.T) {
	err := Newf(KindGatewayPayload, "gateway.fetchGroups", "gateway error: %s", "Instance not found")
	assert.Equal(t, "gateway.fetchGroups: gateway_payload: gateway error: Instance not found", err.Error())
}
