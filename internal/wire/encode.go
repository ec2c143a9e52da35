package wire

import (
	"bytes"

	"github.com/paseka1/Concordium/internal/peer"
)

// Encode serializes m into a single application-message body (the bytes
// that WriteFrame wraps with a length prefix).
func Encode(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Tag))

	switch m.Tag {
	case TagRequest:
		encodeRequest(&buf, m.Request)
	case TagResponse:
		encodeResponse(&buf, m.Response)
	case TagPacket:
		encodePacket(&buf, m.Packet)
	}
	return buf.Bytes(), nil
}

func encodeRequest(buf *bytes.Buffer, req *Request) {
	buf.WriteByte(byte(req.Tag))
	switch req.Tag {
	case ReqPing:
		// no body
	case ReqFindNode:
		buf.Write(req.FindNode.Target[:])
	case ReqBanNode:
		encodeSender(buf, *req.BanNode)
	case ReqHandshake:
		encodeHandshake(buf, req.Handshake)
	case ReqGetPeers:
		writeU16(buf, uint16(len(req.GetPeers)))
		for _, n := range req.GetPeers {
			writeU16(buf, uint16(n))
		}
	case ReqUnbanNode:
		encodeSender(buf, *req.UnbanNode)
	case ReqJoinNetwork:
		writeU16(buf, uint16(req.JoinNetwork))
	case ReqLeaveNetwork:
		writeU16(buf, uint16(req.LeaveNetwork))
	case ReqRetransmit:
		encodeRetransmit(buf, req.Retransmit)
	}
}

func encodeResponse(buf *bytes.Buffer, resp *Response) {
	buf.WriteByte(byte(resp.Tag))
	switch resp.Tag {
	case RespPong:
		writeU64(buf, resp.Pong.Timestamp)
	case RespFindNode:
		encodePeerList(buf, resp.FindNode)
	case RespPeerList:
		encodePeerList(buf, resp.PeerList)
	case RespHandshake:
		encodeHandshake(buf, resp.Handshake)
	}
}

func encodePacket(buf *bytes.Buffer, pkt *Packet) {
	buf.WriteByte(byte(pkt.Tag))
	encodeSender(buf, pkt.Sender)
	if pkt.Tag == PacketDirect {
		buf.Write(pkt.Receiver[:])
	}
	buf.Write(pkt.MessageID[:])
	writeU16(buf, uint16(pkt.NetworkID))
	writeU32(buf, uint32(len(pkt.Payload)))
	buf.Write(pkt.Payload)
}

func encodeHandshake(buf *bytes.Buffer, hs *HandshakePayload) {
	buf.Write(hs.NodeID[:])
	writeU16(buf, hs.Port)
	writeU16(buf, uint16(len(hs.Networks)))
	for _, n := range hs.Networks {
		writeU16(buf, uint16(n))
	}
	buf.WriteByte(byte(hs.PeerType))
	v := []byte(hs.Version)
	writeU16(buf, uint16(len(v)))
	buf.Write(v)
}

func encodeRetransmit(buf *bytes.Buffer, rt *RetransmitPayload) {
	if rt.BlockHash != nil {
		buf.WriteByte(0)
		buf.Write(rt.BlockHash[:])
		var b [8]byte
		// delta is little-endian per spec §6
		leUint64(b[:], rt.Delta)
		buf.Write(b[:])
		return
	}
	buf.WriteByte(1)
	var b [8]byte
	leUint64(b[:], *rt.FinalizationIndex)
	buf.Write(b[:])
}

func encodePeerList(buf *bytes.Buffer, peers []peer.Peer) {
	writeU16(buf, uint16(len(peers)))
	for _, p := range peers {
		encodeSender(buf, p)
	}
}

func leUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func leReadUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
