package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ControlKind identifies a single-line control directive.
type ControlKind uint8

const (
	ControlRepeatPackage  ControlKind = iota + 1 // ">B:REPEAT:{id}"
	ControlRepeatParcel                          // ">B:{id}{nnn}"
	ControlPing                                  // ">PING:{payload}"
	ControlProfileRequest                        // ">BIO:"
	ControlAck                                   // ">ACK:{id}"
)

func (k ControlKind) String() string {
	switch k {
	case ControlRepeatPackage:
		return "REPEAT_PACKAGE"
	case ControlRepeatParcel:
		return "REPEAT_PARCEL"
	case ControlPing:
		return "PING"
	case ControlProfileRequest:
		return "PROFILE_REQUEST"
	case ControlAck:
		return "ACK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Control is a parsed control directive.
type Control struct {
	Kind       ControlKind
	TransferID string
	Index      int    // 1-based parcel index for REPEAT_PARCEL; 0 names the header
	Payload    string // opaque PING payload
}

const (
	repeatTag = "B:"
	repeatAll = "REPEAT:"
	pingTag   = "PING:"
	bioTag    = "BIO"
	ackTag    = "ACK:"
)

// IsControl reports whether line carries a control directive.
func IsControl(line string) bool {
	return strings.HasPrefix(line, ControlPrefix)
}

// ParseControl decodes a control line. Lines without the sentinel, or with a
// directive this package does not know, return ErrUnknownDirective.
func ParseControl(line string) (Control, error) {
	body, ok := strings.CutPrefix(line, ControlPrefix)
	if !ok {
		return Control{}, fmt.Errorf("%w: missing %q sentinel", ErrUnknownDirective, ControlPrefix)
	}

	switch {
	case strings.HasPrefix(body, repeatTag):
		rest := body[len(repeatTag):]
		if id, ok := strings.CutPrefix(rest, repeatAll); ok {
			if len(id) != IDLength {
				return Control{}, fmt.Errorf("%w: repeat id %q", ErrUnknownDirective, id)
			}
			return Control{Kind: ControlRepeatPackage, TransferID: id}, nil
		}
		if len(rest) <= IDLength || !isDigits(rest[IDLength:]) {
			return Control{}, fmt.Errorf("%w: repeat parcel %q", ErrUnknownDirective, rest)
		}
		index, err := strconv.Atoi(rest[IDLength:])
		if err != nil {
			return Control{}, fmt.Errorf("%w: repeat parcel index: %v", ErrUnknownDirective, err)
		}
		return Control{Kind: ControlRepeatParcel, TransferID: rest[:IDLength], Index: index}, nil

	case strings.HasPrefix(body, pingTag):
		return Control{Kind: ControlPing, Payload: body[len(pingTag):]}, nil

	case strings.HasPrefix(body, bioTag):
		return Control{Kind: ControlProfileRequest}, nil

	case strings.HasPrefix(body, ackTag):
		id := body[len(ackTag):]
		if len(id) != IDLength {
			return Control{}, fmt.Errorf("%w: ack id %q", ErrUnknownDirective, id)
		}
		return Control{Kind: ControlAck, TransferID: id}, nil
	}

	return Control{}, fmt.Errorf("%w: %q", ErrUnknownDirective, line)
}

// RepeatPackageLine asks the sender to re-emit transfer id from its header.
func RepeatPackageLine(id string) string {
	return ControlPrefix + repeatTag + repeatAll + id
}

// RepeatParcelLine asks for one parcel. index is 1-based; 0 asks for the header.
func RepeatParcelLine(id string, index int) string {
	return fmt.Sprintf("%s%s%s%03d", ControlPrefix, repeatTag, id, index)
}

// PingLine announces payload (normally the local device id) to a peer.
func PingLine(payload string) string {
	return ControlPrefix + pingTag + payload
}

// ProfileRequestLine asks a peer to send its profile.
func ProfileRequestLine() string {
	return ControlPrefix + bioTag + Separator
}

// AckLine confirms that transfer id was reassembled and delivered.
func AckLine(id string) string {
	return ControlPrefix + ackTag + id
}
