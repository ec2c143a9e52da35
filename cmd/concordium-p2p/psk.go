package main

import (
	"fmt"
	"os"
	"time"
)

const appVersion = "0.1.0"

// defaultReconnectBackoff bounds how soon a bootstrap address whose
// handshake identity mismatched gets retried (spec §4.8).
const defaultReconnectBackoff = 5 * time.Minute

// defaultPSK is the pre-shared key baked into the binary (spec §4.2): a
// fixed 32-byte literal, not a per-installation secret, so two stock
// builds interoperate without any out-of-band key exchange.
var defaultPSK = [32]byte([]byte("54686973206973206d79204175737472"))

// loadOrCreatePSK returns defaultPSK unless path names a file, in which
// case its 32 bytes override the baked-in key — for operators running a
// private network with its own shared secret.
func loadOrCreatePSK(path string) ([32]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var psk [32]byte
		if len(data) != 32 {
			return psk, fmt.Errorf("psk file %s: want 32 bytes, got %d", path, len(data))
		}
		copy(psk[:], data)
		return psk, nil
	}
	if !os.IsNotExist(err) {
		return [32]byte{}, err
	}
	return defaultPSK, nil
}
