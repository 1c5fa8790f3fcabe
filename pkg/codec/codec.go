// Package codec encodes and decodes the line commands understood by the
// printer and the scanner.
package codec

import (
	"encoding/hex"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
)

const (
	// JobQueryCommand asks the printer for the fields of the current job.
	JobQueryCommand = "GJD\r"
	// JobReplyMarker must appear in a reply to JobQueryCommand.
	JobReplyMarker = "JDL"
	// PrintAckMarker must appear in a reply to a print command.
	PrintAckMarker = "ACK"
	// Terminator ends every printer reply.
	Terminator = "\r"

	// ScannerMatchOnlyCommand restricts scanner output to matches.
	ScannerMatchOnlyCommand = "<K705,1,0,0>"

	// DefaultPrintCommand is the print template used when none is configured.
	DefaultPrintCommand = "JDA|{field}={number}|"
)

// EncodeMatchCommand hex-encodes the ASCII bytes of text. Scanner payloads
// cannot carry raw wildcard or control characters.
func EncodeMatchCommand(text string) (string, error) {
	if err := requireASCII(text); err != nil {
		return "", err
	}
	return hex.EncodeToString([]byte(text)), nil
}

// DecodeMatchCommand reverses EncodeMatchCommand.
func DecodeMatchCommand(encoded string) (string, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return "", domain.Wrap(domain.KindEncoding, err, "decode match command")
	}
	text := string(raw)
	if err := requireASCII(text); err != nil {
		return "", err
	}
	return text, nil
}

// ScannerMatchStringCommand wraps a hex payload in the match-string command.
func ScannerMatchStringCommand(hexData string) string {
	return "<K231h,1," + hexData + ">"
}

// ParsePipeFields splits a printer reply into KEY=VALUE pairs. Segments
// without '=' are ignored and the value keeps any further '=' characters.
func ParsePipeFields(reply string) map[string]string {
	fields := make(map[string]string)
	for _, segment := range strings.Split(reply, "|") {
		segment = strings.Trim(segment, "\r\n")
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		fields[key] = value
	}
	return fields
}

// FormatPrintCommand fills a print template with the field name and serial
// number. Both {field}/{number} and the positional {0}/{1} placeholders are
// accepted, and doubled braces are literal braces; backticks stand for
// carriage returns. A trailing carriage return is always appended.
func FormatPrintCommand(template, field, number string) string {
	if template == "" {
		template = DefaultPrintCommand
	}
	r := strings.NewReplacer(
		"{{", "{",
		"}}", "}",
		"{field}", field,
		"{number}", number,
		"{0}", field,
		"{1}", number,
		"`", "\r",
	)
	return r.Replace(template) + "\r"
}

// ToASCII converts text to bytes, rejecting anything outside 7-bit ASCII.
func ToASCII(text string) ([]byte, error) {
	if err := requireASCII(text); err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func requireASCII(text string) error {
	for i := 0; i < len(text); i++ {
		if text[i] > 0x7f {
			return domain.Errorf(domain.KindEncoding, "non-ASCII byte 0x%02x at offset %d", text[i], i)
		}
	}
	return nil
}
