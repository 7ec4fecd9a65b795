package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTombstoneKey(t *testing.T) {
	at := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)

	key := TombstoneKey("Client@X.com", "Re: Offer", at)
	assert.Equal(t, "client@x_com|Re: Offer|1787221800", key)

	// Sender is case-folded and trimmed, subject only trimmed
	assert.Equal(t, key, TombstoneKey("  CLIENT@x.COM ", " Re: Offer ", at))
	assert.NotEqual(t, key, TombstoneKey("client@x.com", "re: offer", at))

	// Forbidden key characters are flattened
	assert.Equal(t, "a_b_c_d_e_f_g_h@y_io|s_1|1787221800",
		TombstoneKey("a.b#c$d[e]f/g|h@y.io", "s|1", at))

	// Sub-second precision does not split keys
	assert.Equal(t, key, TombstoneKey("client@x.com", "Re: Offer", at.Add(500*time.Millisecond)))
	assert.NotEqual(t, key, TombstoneKey("client@x.com", "Re: Offer", at.Add(time.Second)))
}

func TestTombstoneKeyForReply(t *testing.T) {
	at := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	r := &Reply{SenderAddress: "Client@X.com", Subject: "Re: Offer", ReceivedAt: at}
	assert.Equal(t, TombstoneKey("client@x.com", "Re: Offer", at), TombstoneKeyForReply(r))
}
