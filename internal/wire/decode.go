package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/p2perr"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/seenmessages"
)

// Decode parses a single application-message body produced by Encode.
func Decode(body []byte) (*Message, error) {
	if len(body) < 1 {
		return nil, p2perr.New(p2perr.InvalidFrame, "wire.Decode", fmt.Errorf("empty body"))
	}
	r := bytes.NewReader(body[1:])
	m := &Message{Tag: Tag(body[0])}

	var err error
	switch m.Tag {
	case TagRequest:
		m.Request, err = decodeRequest(r)
	case TagResponse:
		m.Response, err = decodeResponse(r)
	case TagPacket:
		m.Packet, err = decodePacket(r)
	default:
		return nil, p2perr.New(p2perr.ProtocolViolation, "wire.Decode", fmt.Errorf("unknown tag 0x%02x", body[0]))
	}
	if err != nil {
		return nil, p2perr.New(p2perr.InvalidFrame, "wire.Decode", err)
	}
	return m, nil
}

func decodeRequest(r *bytes.Reader) (*Request, error) {
	tagb, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	req := &Request{Tag: RequestTag(tagb)}
	switch req.Tag {
	case ReqPing:
	case ReqFindNode:
		var target [32]byte
		if _, err := io.ReadFull(r, target[:]); err != nil {
			return nil, err
		}
		id, err := nodeid.FromBytes(target[:])
		if err != nil {
			return nil, err
		}
		req.FindNode = &FindNodePayload{Target: id}
	case ReqBanNode:
		p, err := decodeSender(r)
		if err != nil {
			return nil, err
		}
		req.BanNode = &p
	case ReqHandshake:
		hs, err := decodeHandshake(r)
		if err != nil {
			return nil, err
		}
		req.Handshake = hs
	case ReqGetPeers:
		nets, err := decodeNetworkList(r)
		if err != nil {
			return nil, err
		}
		req.GetPeers = nets
	case ReqUnbanNode:
		p, err := decodeSender(r)
		if err != nil {
			return nil, err
		}
		req.UnbanNode = &p
	case ReqJoinNetwork:
		n, err := readU16(r)
		if err != nil {
			return nil, err
		}
		req.JoinNetwork = peer.NetworkID(n)
	case ReqLeaveNetwork:
		n, err := readU16(r)
		if err != nil {
			return nil, err
		}
		req.LeaveNetwork = peer.NetworkID(n)
	case ReqRetransmit:
		rt, err := decodeRetransmit(r)
		if err != nil {
			return nil, err
		}
		req.Retransmit = rt
	default:
		return nil, fmt.Errorf("wire: unknown request sub-tag %d", tagb)
	}
	return req, nil
}

func decodeResponse(r *bytes.Reader) (*Response, error) {
	tagb, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	resp := &Response{Tag: ResponseTag(tagb)}
	switch resp.Tag {
	case RespPong:
		ts, err := readU64(r)
		if err != nil {
			return nil, err
		}
		resp.Pong = &PongPayload{Timestamp: ts}
	case RespFindNode:
		peers, err := decodePeerList(r)
		if err != nil {
			return nil, err
		}
		resp.FindNode = peers
	case RespPeerList:
		peers, err := decodePeerList(r)
		if err != nil {
			return nil, err
		}
		resp.PeerList = peers
	case RespHandshake:
		hs, err := decodeHandshake(r)
		if err != nil {
			return nil, err
		}
		resp.Handshake = hs
	default:
		return nil, fmt.Errorf("wire: unknown response sub-tag %d", tagb)
	}
	return resp, nil
}

func decodePacket(r *bytes.Reader) (*Packet, error) {
	tagb, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	pkt := &Packet{Tag: PacketTag(tagb)}
	sender, err := decodeSender(r)
	if err != nil {
		return nil, err
	}
	pkt.Sender = sender

	if pkt.Tag == PacketDirect {
		var rb [32]byte
		if _, err := io.ReadFull(r, rb[:]); err != nil {
			return nil, err
		}
		recv, err := nodeid.FromBytes(rb[:])
		if err != nil {
			return nil, err
		}
		pkt.Receiver = &recv
	} else if pkt.Tag != PacketBroadcast {
		return nil, fmt.Errorf("wire: unknown packet sub-tag %d", tagb)
	}

	var mid [seenmessages.Size]byte
	if _, err := io.ReadFull(r, mid[:]); err != nil {
		return nil, err
	}
	pkt.MessageID = seenmessages.ID(mid)

	netID, err := readU16(r)
	if err != nil {
		return nil, err
	}
	pkt.NetworkID = peer.NetworkID(netID)

	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(r.Len()) {
		return nil, fmt.Errorf("wire: packet payload length %d exceeds %d bytes remaining", n, r.Len())
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	pkt.Payload = payload
	return pkt, nil
}

func decodeHandshake(r *bytes.Reader) (*HandshakePayload, error) {
	var idb [32]byte
	if _, err := io.ReadFull(r, idb[:]); err != nil {
		return nil, err
	}
	id, err := nodeid.FromBytes(idb[:])
	if err != nil {
		return nil, err
	}
	port, err := readU16(r)
	if err != nil {
		return nil, err
	}
	nets, err := decodeNetworkList(r)
	if err != nil {
		return nil, err
	}
	ptByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	vlen, err := readU16(r)
	if err != nil {
		return nil, err
	}
	if int64(vlen) > int64(r.Len()) {
		return nil, fmt.Errorf("wire: handshake version length %d exceeds %d bytes remaining", vlen, r.Len())
	}
	vbuf := make([]byte, vlen)
	if _, err := io.ReadFull(r, vbuf); err != nil {
		return nil, err
	}
	return &HandshakePayload{
		NodeID:   id,
		Port:     port,
		Networks: nets,
		PeerType: peer.Type(ptByte),
		Version:  string(vbuf),
	}, nil
}

func decodeNetworkList(r *bytes.Reader) ([]peer.NetworkID, error) {
	count, err := readU16(r)
	if err != nil {
		return nil, err
	}
	out := make([]peer.NetworkID, count)
	for i := range out {
		n, err := readU16(r)
		if err != nil {
			return nil, err
		}
		out[i] = peer.NetworkID(n)
	}
	return out, nil
}

func decodePeerList(r *bytes.Reader) ([]peer.Peer, error) {
	count, err := readU16(r)
	if err != nil {
		return nil, err
	}
	out := make([]peer.Peer, count)
	for i := range out {
		p, err := decodeSender(r)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func decodeRetransmit(r *bytes.Reader) (*RetransmitPayload, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch kind {
	case 0:
		var hash [32]byte
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return nil, err
		}
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		return &RetransmitPayload{BlockHash: &hash, Delta: leReadUint64(b[:])}, nil
	case 1:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		idx := leReadUint64(b[:])
		return &RetransmitPayload{FinalizationIndex: &idx}, nil
	default:
		return nil, fmt.Errorf("wire: unknown retransmit kind %d", kind)
	}
}
