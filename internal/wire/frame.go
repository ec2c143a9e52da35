// Package wire implements the length-prefixed frame codec and the typed
// application message layouts carried over a noise-secured connection
// (spec §4.1, §6).
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/paseka1/Concordium/internal/p2perr"
)

// MaxFrameLen is the hard cap on a declared frame length; larger values
// are rejected as InvalidFrame before any allocation happens.
const MaxFrameLen = 256 * 1024 * 1024

// MaxNoiseMessageLen is the maximum plaintext size of a single noise
// transport message: the 65535-byte ciphertext ceiling minus the 16-byte
// AEAD tag.
const MaxNoiseMessageLen = 65535 - 16

// WriteFrame writes payload as a u32-BE length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLen {
		return p2perr.New(p2perr.InvalidFrame, "wire.WriteFrame", fmt.Errorf("payload %d exceeds cap %d", len(payload), MaxFrameLen))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return p2perr.New(p2perr.Io, "wire.WriteFrame", err)
	}
	if _, err := w.Write(payload); err != nil {
		return p2perr.New(p2perr.Io, "wire.WriteFrame", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. It returns
// InvalidFrame if the declared length exceeds MaxFrameLen.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, p2perr.New(p2perr.Io, "wire.ReadFrame", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameLen {
		return nil, p2perr.New(p2perr.InvalidFrame, "wire.ReadFrame", fmt.Errorf("declared length %d exceeds cap %d", n, MaxFrameLen))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, p2perr.New(p2perr.Io, "wire.ReadFrame", err)
	}
	return buf, nil
}
