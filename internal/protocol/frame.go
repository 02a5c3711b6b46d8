package protocol

import (
	"encoding/binary"
	"errors"
)

// Binary websocket frames carry action packets. The first byte is the frame kind.
const (
	FramePlay    byte = 0x01 // client -> server: ActionRequest
	FrameConfirm byte = 0x02 // server -> client: uint64 actor id + ActionRequest
)

var ErrUnknownFrame = errors.New("protocol: unknown frame kind")

func EncodePlayFrame(r ActionRequest) ([]byte, error) {
	b := make([]byte, 0, 1+r.EncodedLen())
	b = append(b, FramePlay)
	return r.AppendBinary(b)
}

func EncodeConfirmFrame(actorID uint64, r ActionRequest) ([]byte, error) {
	b := make([]byte, 0, 1+8+r.EncodedLen())
	b = append(b, FrameConfirm)
	b = binary.LittleEndian.AppendUint64(b, actorID)
	return r.AppendBinary(b)
}

// Frame is a decoded binary frame. ActorID is only set for FrameConfirm.
type Frame struct {
	Kind    byte
	ActorID uint64
	Request ActionRequest
}

func DecodeFrame(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, ErrShortPacket
	}
	f := Frame{Kind: b[0]}
	body := b[1:]
	switch f.Kind {
	case FramePlay:
	case FrameConfirm:
		if len(body) < 8 {
			return Frame{}, ErrShortPacket
		}
		f.ActorID = binary.LittleEndian.Uint64(body)
		body = body[8:]
	default:
		return Frame{}, ErrUnknownFrame
	}
	req, _, err := DecodeActionRequest(body)
	if err != nil {
		return Frame{}, err
	}
	f.Request = req
	return f, nil
}
