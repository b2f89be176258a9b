// Package protocol defines the line formats exchanged between peers: the
// transfer header, payload parcels and single-line control directives.
package protocol

import "fmt"

// Command tags the kind of payload a transfer carries.
type Command uint8

const (
	CommandNone       Command = iota // invalid / unparsable
	CommandGeneric                   // opaque application payload
	CommandGetProfile                // profile (bio) announcement
	CommandChat                      // direct chat message
	CommandBroadcast                 // message for every nearby device
)

// Wire tokens, exactly as they appear in the command field of a header.
var commandTokens = map[Command]string{
	CommandGeneric:    "GENERIC",
	CommandGetProfile: "GET_PROFILE",
	CommandChat:       "CHAT",
	CommandBroadcast:  "BROADCAST",
}

func (c Command) String() string {
	if tok, ok := commandTokens[c]; ok {
		return tok
	}
	return "NONE"
}

// ParseCommand maps a wire token back to its Command. NONE is never a valid
// token on the wire.
func ParseCommand(token string) (Command, error) {
	for c, tok := range commandTokens {
		if tok == token {
			return c, nil
		}
	}
	return CommandNone, fmt.Errorf("unknown command token %q", token)
}

// Framing constants.
const (
	IDLength       = 2   // transfer id characters
	ChecksumLength = 4   // checksum letters
	IndexDigits    = 3   // zero-padded parcel index / parcel count
	MaxParcels     = 999 // largest count that fits IndexDigits
	HeaderFields   = 5   // colon-separated fields in a header line
	Separator      = ":"
	ControlPrefix  = ">"
)

// Header describes a transfer; it is always the first line sent for a
// transfer and carries metadata instead of payload.
type Header struct {
	ID           string
	TotalParcels int
	Checksum     string
	Command      Command
	OriginID     string // stable device id of the author, not the radio address
}
