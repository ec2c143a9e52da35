package wire

import "encoding/binary"

// SessionID scopes catch-up requests to a protocol epoch (spec §3).
type SessionID struct {
	GenesisBlockHash [32]byte
	Incarnation      uint64
}

// Bytes renders the session id in its big-endian wire form.
func (s SessionID) Bytes() []byte {
	buf := make([]byte, 40)
	copy(buf, s.GenesisBlockHash[:])
	binary.BigEndian.PutUint64(buf[32:], s.Incarnation)
	return buf
}

// ParseSessionID parses the big-endian form produced by Bytes.
func ParseSessionID(b []byte) (SessionID, error) {
	var s SessionID
	if len(b) != 40 {
		return s, errSessionLen
	}
	copy(s.GenesisBlockHash[:], b[:32])
	s.Incarnation = binary.BigEndian.Uint64(b[32:])
	return s, nil
}

var errSessionLen = &sessionLenError{}

type sessionLenError struct{}

func (*sessionLenError) Error() string { return "wire: session id must be 40 bytes" }
