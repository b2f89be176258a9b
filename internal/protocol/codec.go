package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Chunk splits payload into pieces of at most chunkSize characters. The last
// piece may be shorter; joining the pieces yields payload again. Sizes are
// counted in runes so a multi-byte character is never cut in half.
func Chunk(payload string, chunkSize int) []string {
	if chunkSize < 1 {
		chunkSize = 1
	}
	runes := []rune(payload)
	total := (len(runes) + chunkSize - 1) / chunkSize

	chunks := make([]string, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// ParcelCount returns how many parcels Chunk produces for payload.
func ParcelCount(payload string, chunkSize int) int {
	if chunkSize < 1 {
		chunkSize = 1
	}
	n := utf8.RuneCountInString(payload)
	return (n + chunkSize - 1) / chunkSize
}

// Checksum sums the code points of payload and writes the sum as four base-26
// letters, least significant first. It is a corruption detector only.
func Checksum(payload string) (string, error) {
	if payload == "" {
		return "", ErrEmptyPayload
	}

	var sum uint64
	for _, r := range payload {
		sum += uint64(r)
	}

	var b strings.Builder
	b.Grow(ChecksumLength)
	for range ChecksumLength {
		b.WriteByte(byte('A' + sum%26))
		sum /= 26
	}
	return b.String(), nil
}

// EncodeHeader formats h as "{id}:{total:03d}:{checksum}:{command}:{originId}".
func EncodeHeader(h Header) string {
	return fmt.Sprintf("%s:%03d:%s:%s:%s", h.ID, h.TotalParcels, h.Checksum, h.Command, h.OriginID)
}

// DecodeHeader parses a header line. The line must have exactly five fields,
// a known command token and a parcel count of at most IndexDigits digits.
func DecodeHeader(line string) (Header, error) {
	fields := strings.Split(line, Separator)
	if len(fields) != HeaderFields {
		return Header{}, fmt.Errorf("%w: %d fields (need %d)", ErrInvalidHeader, len(fields), HeaderFields)
	}

	id, rawTotal, sum, rawCmd, origin := fields[0], fields[1], fields[2], fields[3], fields[4]
	if len(id) != IDLength {
		return Header{}, fmt.Errorf("%w: id %q", ErrInvalidHeader, id)
	}
	if !isDigits(rawTotal) || len(rawTotal) > IndexDigits {
		return Header{}, fmt.Errorf("%w: parcel count %q", ErrInvalidHeader, rawTotal)
	}
	total, err := strconv.Atoi(rawTotal)
	if err != nil {
		return Header{}, fmt.Errorf("%w: parcel count: %v", ErrInvalidHeader, err)
	}
	if len(sum) != ChecksumLength {
		return Header{}, fmt.Errorf("%w: checksum %q", ErrInvalidHeader, sum)
	}
	cmd, err := ParseCommand(rawCmd)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	return Header{
		ID:           id,
		TotalParcels: total,
		Checksum:     sum,
		Command:      cmd,
		OriginID:     origin,
	}, nil
}

// EncodeParcel formats one payload piece as "{id}{index:03d}:{text}".
func EncodeParcel(id string, index int, text string) string {
	return fmt.Sprintf("%s%03d:%s", id, index, text)
}

// DecodeParcel parses a parcel line belonging to transfer expectedID. Only the
// first colon separates the prefix; the text itself may contain colons.
func DecodeParcel(line, expectedID string) (int, string, error) {
	prefix, text, ok := strings.Cut(line, Separator)
	if !ok {
		return 0, "", fmt.Errorf("%w: no separator", ErrInvalidParcel)
	}
	digits, ok := strings.CutPrefix(prefix, expectedID)
	if !ok {
		return 0, "", fmt.Errorf("%w: prefix %q does not belong to %q", ErrInvalidParcel, prefix, expectedID)
	}
	if !isDigits(digits) {
		return 0, "", fmt.Errorf("%w: index %q", ErrInvalidParcel, digits)
	}
	index, err := strconv.Atoi(digits)
	if err != nil {
		return 0, "", fmt.Errorf("%w: index: %v", ErrInvalidParcel, err)
	}
	return index, text, nil
}

// TransferID returns the id prefix of a header or parcel line, or "" when the
// line is too short to carry one.
func TransferID(line string) string {
	if len(line) < IDLength {
		return ""
	}
	return line[:IDLength]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
