package netplugin

import (
	"crypto/rand"
	"encoding/hex"
)

// newRequestID returns a short random hex string used as a Request's
// correlation id: Dispatcher.Start stamps one on outgoing requests and
// keys its pending map by it, so readLoop can match an out-of-order
// Response back to the handle waiting on it.
func newRequestID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
