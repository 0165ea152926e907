package tftpwire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	req := &RequestPacket{
		Op:       OpRRQ,
		Filename: "bootx64.efi",
		Mode:     "octet",
		Options: map[string]string{
			"blksize":    "1024",
			"windowsize": "4",
		},
	}
	raw := req.Marshal()

	op, decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, OpRRQ, op)

	got := decoded.(*RequestPacket)
	require.Equal(t, "bootx64.efi", got.Filename)
	require.Equal(t, "octet", got.Mode)
	require.Equal(t, "1024", got.Options["blksize"])
	require.Equal(t, "4", got.Options["windowsize"])
}

func TestRequestOptionNamesCaseInsensitive(t *testing.T) {
	raw := []byte{0, byte(OpRRQ)}
	raw = append(raw, []byte("file\x00octet\x00BLKSIZE\x00512\x00")...)
	op, decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, OpRRQ, op)
	got := decoded.(*RequestPacket)
	require.Equal(t, "512", got.Options["blksize"])
}

func TestDataAckRoundTrip(t *testing.T) {
	d := &DataPacket{Block: 4242, Data: []byte("hello")}
	op, decoded, err := Decode(d.Marshal())
	require.NoError(t, err)
	require.Equal(t, OpDATA, op)
	require.Equal(t, d, decoded)

	a := &AckPacket{Block: 4242}
	op, decoded, err = Decode(a.Marshal())
	require.NoError(t, err)
	require.Equal(t, OpACK, op)
	require.Equal(t, a, decoded)
}

func TestErrorRoundTrip(t *testing.T) {
	e := &ErrorPacket{Code: ErrFileNotFound, Message: "File not found"}
	op, decoded, err := Decode(e.Marshal())
	require.NoError(t, err)
	require.Equal(t, OpERROR, op)
	require.Equal(t, e, decoded)
}

func TestOackRoundTrip(t *testing.T) {
	o := &OackPacket{Options: map[string]string{"blksize": "1024", "tsize": "1716"}}
	op, decoded, err := Decode(o.Marshal())
	require.NoError(t, err)
	require.Equal(t, OpOACK, op)
	got := decoded.(*OackPacket)
	require.Equal(t, "1024", got.Options["blksize"])
	require.Equal(t, "1716", got.Options["tsize"])
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, _, err := Decode([]byte{0})
	require.Error(t, err)
}

func TestRequestMissingNulTerminationError(t *testing.T) {
	raw := []byte{0, byte(OpRRQ)}
	raw = append(raw, []byte("file\x00octet")...) // no trailing NUL
	_, _, err := Decode(raw)
	require.Error(t, err)
}
