package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsReplyToUsEmptySentSet(t *testing.T) {
	provider := newFakeProvider()
	provider.addThreadMember("t1", "m1")
	filter := NewReplyFilter(provider)

	ok, err := filter.IsReplyToUs(context.Background(), "a", "r", "t1", nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, provider.threadCalls, "empty sent set must not hit the mailbox")
}

func TestIsReplyToUsThreadMembership(t *testing.T) {
	provider := newFakeProvider()
	provider.addThreadMember("t1", "m1")
	provider.addThreadMember("t1", "m2")
	provider.addThreadMember("t2", "m3")
	filter := NewReplyFilter(provider)

	sent := map[string]struct{}{"m1": {}}

	ok, err := filter.IsReplyToUs(context.Background(), "a", "r", "t1", sent, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = filter.IsReplyToUs(context.Background(), "a", "r", "t2", sent, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
