package codec_test

import (
	"testing"

	"github.com/aretw0/conductor/pkg/codec"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMatchCommand_RoundTripsPrintableASCII(t *testing.T) {
	var printable []byte
	for b := byte(0x20); b < 0x7f; b++ {
		printable = append(printable, b)
	}
	for _, s := range []string{"", "*2211*W6G*", string(printable)} {
		encoded, err := codec.EncodeMatchCommand(s)
		require.NoError(t, err)

		decoded, err := codec.DecodeMatchCommand(encoded)
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	}
}

func TestEncodeMatchCommand_KnownValue(t *testing.T) {
	encoded, err := codec.EncodeMatchCommand("*2211*W6G*")
	require.NoError(t, err)
	assert.Equal(t, "2a323231312a5736472a", encoded)
	assert.Equal(t, "<K231h,1,2a323231312a5736472a>", codec.ScannerMatchStringCommand(encoded))
}

func TestEncodeMatchCommand_RejectsNonASCII(t *testing.T) {
	_, err := codec.EncodeMatchCommand("*Ø*")
	assert.ErrorIs(t, err, domain.ErrEncoding)

	_, err = codec.DecodeMatchCommand("zz")
	assert.ErrorIs(t, err, domain.ErrEncoding)
}

func TestParsePipeFields(t *testing.T) {
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, codec.ParsePipeFields("A=1|B=2|GARBAGE|"))
	assert.Empty(t, codec.ParsePipeFields(""))
	assert.Equal(t, map[string]string{"K": "a=b"}, codec.ParsePipeFields("K=a=b||"))
	assert.Equal(t,
		map[string]string{"GTIN": "00012345678905", "LOT": "W6G", "EXPIRY": "2211"},
		codec.ParsePipeFields("JDL|GTIN=00012345678905|LOT=W6G|EXPIRY=2211|\r"),
	)
}

func TestFormatPrintCommand(t *testing.T) {
	assert.Equal(t, "JDA|SERIAL_NUMBER=000001|\r", codec.FormatPrintCommand("", "SERIAL_NUMBER", "000001"))
	assert.Equal(t, "JDA|{0}=42|\r", codec.FormatPrintCommand("JDA|{{0}}={1}|", "SN", "42"))
	assert.Equal(t, "JDA|{SN}=42|\r", codec.FormatPrintCommand("JDA|{{{0}}}={1}|", "SN", "42"))
	assert.Equal(t, "JDA|SN=42|\rPRN\r", codec.FormatPrintCommand("JDA|{field}={number}|`PRN", "SN", "42"))
}
