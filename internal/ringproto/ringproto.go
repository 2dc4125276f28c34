// Package ringproto implements the on-ring message grammar: the
// parser and encoder for /sync, /all_pixels, /election, /disconnect,
// /new_connection, and raw pixel frames.
package ringproto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ar4mirez/pixring/internal/canvas"
	"github.com/ar4mirez/pixring/internal/manifest"
)

// Kind tags which of the seven ring frame kinds a parsed Message is.
type Kind int

const (
	// KindPixel is a raw JSON pixel frame (no command prefix).
	KindPixel Kind = iota
	KindSync
	KindAllPixels
	KindElectionCandidate
	KindElectionLeader
	KindDisconnect
	KindNewConnection
)

// SyncMessage is the full-state snapshot plus topology hint carried by
// /sync. PredecessorID is rewritten in-place by each hop so the
// receiver learns who its new predecessor is.
type SyncMessage struct {
	Pixels        []canvas.Pixel              `json:"pixels"`
	Conn          manifest.ConnectionInfoDict `json:"conn"`
	Leader        uint16                      `json:"leader"`
	PredecessorID uint16                      `json:"predecessor_id"`
}

// NewConMessage announces that a new replica "From" is joining; the
// replica whose current successor is "Effecting" must retarget.
type NewConMessage struct {
	From      manifest.ReplicaInfo `json:"from"`
	Effecting manifest.ReplicaInfo `json:"effecting"`
}

// Message is a parsed ring frame. Only the field matching Kind is
// populated.
type Message struct {
	Kind          Kind
	Pixel         canvas.Pixel
	Sync          SyncMessage
	AllPixels     []canvas.Pixel
	ElectionID    uint16
	DisconnectID  uint16
	NewConnection NewConMessage
}

// ErrUnknownCommand is returned for a recognized '/' prefix frame that
// doesn't match any known command. It is logged and dropped, not
// treated as fatal to the link.
var ErrUnknownCommand = fmt.Errorf("ringproto: unknown command")

// ErrMalformedPayload is returned when a command's JSON payload fails
// to parse. Also logged and dropped, not fatal.
var ErrMalformedPayload = fmt.Errorf("ringproto: malformed payload")

// Parse decodes one newline-stripped frame into a Message.
func Parse(frame string) (Message, error) {
	if !strings.HasPrefix(frame, "/") {
		var p canvas.Pixel
		if err := json.Unmarshal([]byte(frame), &p); err != nil {
			return Message{}, fmt.Errorf("%w: raw pixel: %v", ErrMalformedPayload, err)
		}
		return Message{Kind: KindPixel, Pixel: p}, nil
	}

	fields := strings.SplitN(frame, " ", 2)
	cmd := fields[0]
	var payload string
	if len(fields) > 1 {
		payload = fields[1]
	}

	switch cmd {
	case "/sync":
		var sm SyncMessage
		if err := json.Unmarshal([]byte(payload), &sm); err != nil {
			return Message{}, fmt.Errorf("%w: /sync: %v", ErrMalformedPayload, err)
		}
		return Message{Kind: KindSync, Sync: sm}, nil

	case "/all_pixels":
		var pixels []canvas.Pixel
		if err := json.Unmarshal([]byte(payload), &pixels); err != nil {
			return Message{}, fmt.Errorf("%w: /all_pixels: %v", ErrMalformedPayload, err)
		}
		return Message{Kind: KindAllPixels, AllPixels: pixels}, nil

	case "/election":
		sub := strings.SplitN(payload, " ", 2)
		if len(sub) != 2 {
			return Message{}, fmt.Errorf("%w: /election: missing id", ErrMalformedPayload)
		}
		id, err := parseID(sub[1])
		if err != nil {
			return Message{}, fmt.Errorf("%w: /election id: %v", ErrMalformedPayload, err)
		}
		switch sub[0] {
		case "election":
			return Message{Kind: KindElectionCandidate, ElectionID: id}, nil
		case "leader":
			return Message{Kind: KindElectionLeader, ElectionID: id}, nil
		default:
			return Message{}, fmt.Errorf("%w: /election %s", ErrUnknownCommand, sub[0])
		}

	case "/disconnect":
		id, err := parseID(payload)
		if err != nil {
			return Message{}, fmt.Errorf("%w: /disconnect id: %v", ErrMalformedPayload, err)
		}
		return Message{Kind: KindDisconnect, DisconnectID: id}, nil

	case "/new_connection":
		var nc NewConMessage
		if err := json.Unmarshal([]byte(payload), &nc); err != nil {
			return Message{}, fmt.Errorf("%w: /new_connection: %v", ErrMalformedPayload, err)
		}
		return Message{Kind: KindNewConnection, NewConnection: nc}, nil

	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

func parseID(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// EncodePixel renders a raw pixel frame.
func EncodePixel(p canvas.Pixel) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("ringproto: encode pixel: %w", err)
	}
	return string(b), nil
}

// EncodeSync renders a /sync frame.
func EncodeSync(sm SyncMessage) (string, error) {
	b, err := json.Marshal(sm)
	if err != nil {
		return "", fmt.Errorf("ringproto: encode sync: %w", err)
	}
	return "/sync " + string(b), nil
}

// EncodeAllPixels renders an /all_pixels frame.
func EncodeAllPixels(pixels []canvas.Pixel) (string, error) {
	b, err := json.Marshal(pixels)
	if err != nil {
		return "", fmt.Errorf("ringproto: encode all_pixels: %w", err)
	}
	return "/all_pixels " + string(b), nil
}

// EncodeElectionCandidate renders a Chang-Roberts candidate token.
func EncodeElectionCandidate(id uint16) string {
	return fmt.Sprintf("/election election %d", id)
}

// EncodeElectionLeader renders a Chang-Roberts announcement token.
func EncodeElectionLeader(id uint16) string {
	return fmt.Sprintf("/election leader %d", id)
}

// EncodeDisconnect renders a /disconnect frame.
func EncodeDisconnect(id uint16) string {
	return fmt.Sprintf("/disconnect %d", id)
}

// EncodeNewConnection renders a /new_connection frame.
func EncodeNewConnection(nc NewConMessage) (string, error) {
	b, err := json.Marshal(nc)
	if err != nil {
		return "", fmt.Errorf("ringproto: encode new_connection: %w", err)
	}
	return "/new_connection " + string(b), nil
}
