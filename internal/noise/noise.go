// Package noise implements the handshake and AEAD transport cipher that
// secures every connection (spec §4.2): Noise_XX with a fixed prologue and
// a pre-shared key mixed into that prologue, so two peers that disagree on
// the key fail the handshake rather than silently talking past each other.
//
// Grounded on the go-libp2p noise transport and the gosuda-portal
// handshaker found in the retrieval pack, both built on
// github.com/flynn/noise.
package noise

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flynn/noise"

	"github.com/paseka1/Concordium/internal/p2perr"
)

// Prologue is the fixed ASCII literal mixed into every handshake transcript.
const Prologue = "CONCORDIUMP2P"

// PSKSize is the width of the pre-shared key baked into the binary.
const PSKSize = 32

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Session wraps the post-handshake read/write cipher states for one
// connection.
type Session struct {
	send *noise.CipherState
	recv *noise.CipherState
}

// prologueWithPSK binds the shared secret into the handshake transcript:
// both sides must present the same 32-byte key or the first decrypted
// message (and therefore the whole handshake) fails integrity checks.
func prologueWithPSK(psk [PSKSize]byte) []byte {
	out := make([]byte, 0, len(Prologue)+PSKSize)
	out = append(out, []byte(Prologue)...)
	out = append(out, psk[:]...)
	return out
}

func newHandshakeState(staticKey noise.DHKey, psk [PSKSize]byte, initiator bool) (*noise.HandshakeState, error) {
	return noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: staticKey,
		Prologue:      prologueWithPSK(psk),
	})
}

// GenerateStaticKey creates a fresh ephemeral-for-the-process X25519
// keypair used as the handshake's static key.
func GenerateStaticKey() (noise.DHKey, error) {
	return cipherSuite.GenerateKeypair(nil)
}

func writeLengthPrefixed(w io.Writer, payload []byte) error {
	var hdr [2]byte
	if len(payload) > 0xFFFF {
		return p2perr.New(p2perr.HandshakeFailed, "noise.writeLengthPrefixed", fmt.Errorf("message too large: %d", len(payload)))
	}
	binary.BigEndian.PutUint16(hdr[:], uint16(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return p2perr.New(p2perr.Io, "noise.writeLengthPrefixed", err)
	}
	_, err := w.Write(payload)
	if err != nil {
		return p2perr.New(p2perr.Io, "noise.writeLengthPrefixed", err)
	}
	return nil
}

func readLengthPrefixed(r *bufio.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, p2perr.New(p2perr.Io, "noise.readLengthPrefixed", err)
	}
	n := binary.BigEndian.Uint16(hdr[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, p2perr.New(p2perr.Io, "noise.readLengthPrefixed", err)
	}
	return buf, nil
}

// DoInitiator drives message 1 and 3 of the XX handshake as the dialing
// side. w is the raw (unencrypted) connection's write side; r must wrap the
// same connection's read side so partially-buffered bytes aren't lost.
func DoInitiator(r *bufio.Reader, w io.Writer, staticKey noise.DHKey, psk [PSKSize]byte) (*Session, error) {
	hs, err := newHandshakeState(staticKey, psk, true)
	if err != nil {
		return nil, p2perr.New(p2perr.HandshakeFailed, "noise.DoInitiator", err)
	}

	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, p2perr.New(p2perr.HandshakeFailed, "noise.DoInitiator.msg1", err)
	}
	if err := writeLengthPrefixed(w, msg1); err != nil {
		return nil, err
	}

	msg2, err := readLengthPrefixed(r)
	if err != nil {
		return nil, err
	}
	if _, _, _, err := hs.ReadMessage(nil, msg2); err != nil {
		return nil, p2perr.New(p2perr.HandshakeFailed, "noise.DoInitiator.msg2", err)
	}

	msg3, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, p2perr.New(p2perr.HandshakeFailed, "noise.DoInitiator.msg3", err)
	}
	if err := writeLengthPrefixed(w, msg3); err != nil {
		return nil, err
	}

	return &Session{send: cs1, recv: cs2}, nil
}

// DoResponder drives message 2 of the XX handshake as the accepting side.
func DoResponder(r *bufio.Reader, w io.Writer, staticKey noise.DHKey, psk [PSKSize]byte) (*Session, error) {
	hs, err := newHandshakeState(staticKey, psk, false)
	if err != nil {
		return nil, p2perr.New(p2perr.HandshakeFailed, "noise.DoResponder", err)
	}

	msg1, err := readLengthPrefixed(r)
	if err != nil {
		return nil, err
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, p2perr.New(p2perr.HandshakeFailed, "noise.DoResponder.msg1", err)
	}

	msg2, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, p2perr.New(p2perr.HandshakeFailed, "noise.DoResponder.msg2", err)
	}
	if err := writeLengthPrefixed(w, msg2); err != nil {
		return nil, err
	}

	msg3, err := readLengthPrefixed(r)
	if err != nil {
		return nil, err
	}
	_, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, p2perr.New(p2perr.HandshakeFailed, "noise.DoResponder.msg3", err)
	}

	// Responder's send cipher is cs2, its receive cipher is cs1 (flynn/noise
	// returns (c1, c2) = (initiator->responder, responder->initiator) on
	// both sides of the split).
	return &Session{send: cs2, recv: cs1}, nil
}

// Encrypt seals plaintext with the per-direction monotonic nonce
// maintained internally by the cipher state; no nonce is sent on the wire.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) > maxPlaintext {
		return nil, p2perr.New(p2perr.InvalidFrame, "noise.Session.Encrypt", fmt.Errorf("plaintext %d exceeds %d", len(plaintext), maxPlaintext))
	}
	out, err := s.send.Encrypt(nil, nil, plaintext)
	if err != nil {
		return nil, p2perr.New(p2perr.Io, "noise.Session.Encrypt", err)
	}
	return out, nil
}

// Decrypt opens a ciphertext segment produced by the peer's Encrypt.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	out, err := s.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, p2perr.New(p2perr.DecryptFailed, "noise.Session.Decrypt", err)
	}
	return out, nil
}

// maxPlaintext has the same value as wire.MaxNoiseMessageLen: the
// 65535-byte ciphertext ceiling minus the 16-byte AEAD tag.
const maxPlaintext = 65535 - 16
