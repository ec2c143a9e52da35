package noise

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/paseka1/Concordium/internal/p2perr"
)

// EncryptMessage splits plaintext into chunks of at most maxPlaintext
// bytes, encrypts each chunk, and concatenates them as
// (u16 BE ciphertext_len || ciphertext)* — this is the payload that the
// framing layer wraps with its own u32 length prefix. One application
// message is always one frame; only the noise layer ever splits it.
func (s *Session) EncryptMessage(plaintext []byte) ([]byte, error) {
	var out bytes.Buffer
	for off := 0; off < len(plaintext) || (off == 0 && len(plaintext) == 0); {
		end := off + maxPlaintext
		if end > len(plaintext) {
			end = len(plaintext)
		}
		chunk, err := s.Encrypt(plaintext[off:end])
		if err != nil {
			return nil, err
		}
		var hdr [2]byte
		if len(chunk) > 0xFFFF {
			return nil, p2perr.New(p2perr.InvalidFrame, "noise.EncryptMessage", fmt.Errorf("ciphertext chunk %d too large", len(chunk)))
		}
		binary.BigEndian.PutUint16(hdr[:], uint16(len(chunk)))
		out.Write(hdr[:])
		out.Write(chunk)
		off = end
		if off == len(plaintext) {
			break
		}
	}
	return out.Bytes(), nil
}

// DecryptMessage reverses EncryptMessage: it consumes a sequence of
// length-prefixed ciphertext chunks and reassembles the original
// plaintext application message.
func (s *Session) DecryptMessage(framed []byte) ([]byte, error) {
	var out bytes.Buffer
	r := bytes.NewReader(framed)
	for r.Len() > 0 {
		var hdr [2]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, p2perr.New(p2perr.InvalidFrame, "noise.DecryptMessage", err)
		}
		n := binary.BigEndian.Uint16(hdr[:])
		if int64(n) > int64(r.Len()) {
			return nil, p2perr.New(p2perr.InvalidFrame, "noise.DecryptMessage", fmt.Errorf("chunk length %d exceeds %d bytes remaining", n, r.Len()))
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, p2perr.New(p2perr.InvalidFrame, "noise.DecryptMessage", err)
		}
		plain, err := s.Decrypt(chunk)
		if err != nil {
			return nil, err
		}
		out.Write(plain)
	}
	return out.Bytes(), nil
}
