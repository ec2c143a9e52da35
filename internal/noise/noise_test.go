package noise

import (
	"bufio"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handshakePair(t *testing.T, initiatorPSK, responderPSK [PSKSize]byte) (initSess, respSess *Session, initErr, respErr error) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientKey, err := GenerateStaticKey()
	require.NoError(t, err)
	serverKey, err := GenerateStaticKey()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		initSess, initErr = DoInitiator(bufio.NewReader(clientConn), clientConn, clientKey, initiatorPSK)
	}()
	go func() {
		defer wg.Done()
		respSess, respErr = DoResponder(bufio.NewReader(serverConn), serverConn, serverKey, responderPSK)
	}()
	wg.Wait()
	return
}

func TestHandshakeRoundTripMatchingPSK(t *testing.T) {
	var psk [PSKSize]byte
	psk[0] = 0x42

	initSess, respSess, initErr, respErr := handshakePair(t, psk, psk)
	require.NoError(t, initErr)
	require.NoError(t, respErr)
	require.NotNil(t, initSess)
	require.NotNil(t, respSess)

	plaintext := []byte("hello over noise")
	ct, err := initSess.Encrypt(plaintext)
	require.NoError(t, err)
	pt, err := respSess.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestHandshakeRoundTripBidirectional(t *testing.T) {
	var psk [PSKSize]byte
	initSess, respSess, initErr, respErr := handshakePair(t, psk, psk)
	require.NoError(t, initErr)
	require.NoError(t, respErr)

	msg := []byte("responder speaks first")
	ct, err := respSess.Encrypt(msg)
	require.NoError(t, err)
	pt, err := initSess.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, msg, pt)
}

func TestHandshakeFailsOnPSKMismatch(t *testing.T) {
	var initiatorPSK, responderPSK [PSKSize]byte
	initiatorPSK[0] = 0x01
	responderPSK[0] = 0x02

	_, _, initErr, respErr := handshakePair(t, initiatorPSK, responderPSK)
	assert.True(t, initErr != nil || respErr != nil, "mismatched PSKs must fail the handshake on at least one side")
}

func TestEncryptRejectsOversizedPlaintext(t *testing.T) {
	var psk [PSKSize]byte
	initSess, _, initErr, respErr := handshakePair(t, psk, psk)
	require.NoError(t, initErr)
	require.NoError(t, respErr)

	_, err := initSess.Encrypt(make([]byte, maxPlaintext+1))
	assert.Error(t, err)
}

func TestEncryptMessageChunksLargePayloads(t *testing.T) {
	var psk [PSKSize]byte
	initSess, respSess, initErr, respErr := handshakePair(t, psk, psk)
	require.NoError(t, initErr)
	require.NoError(t, respErr)

	plaintext := make([]byte, maxPlaintext*2+123)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}

	framed, err := initSess.EncryptMessage(plaintext)
	require.NoError(t, err)
	out, err := respSess.DecryptMessage(framed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestEncryptMessageRoundTripsEmptyPayload(t *testing.T) {
	var psk [PSKSize]byte
	initSess, respSess, initErr, respErr := handshakePair(t, psk, psk)
	require.NoError(t, initErr)
	require.NoError(t, respErr)

	framed, err := initSess.EncryptMessage(nil)
	require.NoError(t, err)
	out, err := respSess.DecryptMessage(framed)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	var psk [PSKSize]byte
	initSess, respSess, initErr, respErr := handshakePair(t, psk, psk)
	require.NoError(t, initErr)
	require.NoError(t, respErr)

	ct, err := initSess.Encrypt([]byte("authentic"))
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0xFF

	_, err = respSess.Decrypt(ct)
	assert.Error(t, err)
}
