package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/seenmessages"
)

// Top-level message tag (spec §6).
type Tag uint8

const (
	TagRequest  Tag = 0x00
	TagResponse Tag = 0x01
	TagPacket   Tag = 0x02
)

// Request sub-tags.
type RequestTag uint8

const (
	ReqPing         RequestTag = 0
	ReqFindNode     RequestTag = 1
	ReqBanNode      RequestTag = 2
	ReqHandshake    RequestTag = 3
	ReqGetPeers     RequestTag = 4
	ReqUnbanNode    RequestTag = 5
	ReqJoinNetwork  RequestTag = 6
	ReqLeaveNetwork RequestTag = 7
	ReqRetransmit   RequestTag = 8
)

// Response sub-tags.
type ResponseTag uint8

const (
	RespPong      ResponseTag = 0
	RespFindNode  ResponseTag = 1
	RespPeerList  ResponseTag = 2
	RespHandshake ResponseTag = 3
)

// Packet sub-tags.
type PacketTag uint8

const (
	PacketDirect    PacketTag = 0
	PacketBroadcast PacketTag = 1
)

// Message is the decoded form of one application frame.
type Message struct {
	Tag      Tag
	Request  *Request
	Response *Response
	Packet   *Packet
}

// Request carries a Request-tagged message.
type Request struct {
	Tag          RequestTag
	Sender       peer.Peer
	FindNode     *FindNodePayload
	BanNode      *peer.Peer
	Handshake    *HandshakePayload
	GetPeers     []peer.NetworkID
	UnbanNode    *peer.Peer
	JoinNetwork  peer.NetworkID
	LeaveNetwork peer.NetworkID
	Retransmit   *RetransmitPayload
}

// Response carries a Response-tagged message.
type Response struct {
	Tag       ResponseTag
	Sender    peer.Peer
	Pong      *PongPayload
	FindNode  []peer.Peer
	PeerList  []peer.Peer
	Handshake *HandshakePayload
}

// Packet carries a Packet-tagged message (Direct or Broadcast).
type Packet struct {
	Tag       PacketTag
	Sender    peer.Peer
	Receiver  *nodeid.ID // set only for Direct
	MessageID seenmessages.ID
	NetworkID peer.NetworkID
	Payload   []byte
}

// FindNodePayload is the body of a FindNode request.
type FindNodePayload struct {
	Target nodeid.ID
}

// PongPayload echoes the ping's timestamp, in milliseconds.
type PongPayload struct {
	Timestamp uint64
}

// HandshakePayload is the post-noise handshake body (spec §4.3).
type HandshakePayload struct {
	NodeID   nodeid.ID
	Port     uint16
	Networks []peer.NetworkID
	PeerType peer.Type
	Version  string
}

// RetransmitPayload carries a catch-up request (spec §6).
type RetransmitPayload struct {
	BlockHash         *[32]byte
	Delta             uint64
	FinalizationIndex *uint64
}

// ---- sender encoding: node_id(32) || ip(1-byte family || 4 or 16) || port(u16 BE) ----

func encodeSender(buf *bytes.Buffer, p peer.Peer) {
	buf.Write(p.ID[:])
	if ip4 := p.Addr.IP.To4(); ip4 != nil {
		buf.WriteByte(4)
		buf.Write(ip4)
	} else {
		buf.WriteByte(6)
		ip16 := p.Addr.IP.To16()
		if ip16 == nil {
			ip16 = make(net.IP, 16)
		}
		buf.Write(ip16)
	}
	writeU16(buf, p.Addr.Port)
}

func decodeSender(r *bytes.Reader) (peer.Peer, error) {
	var p peer.Peer
	idb := make([]byte, nodeid.Size)
	if _, err := io.ReadFull(r, idb); err != nil {
		return p, err
	}
	id, err := nodeid.FromBytes(idb)
	if err != nil {
		return p, err
	}
	p.ID = id

	fam, err := r.ReadByte()
	if err != nil {
		return p, err
	}
	var ipLen int
	switch fam {
	case 4:
		ipLen = 4
	case 6:
		ipLen = 16
	default:
		return p, fmt.Errorf("wire: unknown address family %d", fam)
	}
	ipb := make([]byte, ipLen)
	if _, err := io.ReadFull(r, ipb); err != nil {
		return p, err
	}
	p.Addr.IP = net.IP(ipb)

	port, err := readU16(r)
	if err != nil {
		return p, err
	}
	p.Addr.Port = port
	return p, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
