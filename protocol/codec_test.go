package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeaderLayout(t *testing.T) {
	env, err := BuildFileStatusCmd("/a")
	require.NoError(t, err)
	env = env.WithSeq(0x1234)

	frame, err := env.Encode()
	require.NoError(t, err)
	require.Len(t, frame, HeaderSize+len(env.Payload))

	assert.Equal(t, byte(OpRead), frame[0])
	assert.Equal(t, byte(0), frame[1])
	assert.Equal(t, uint16(len(env.Payload)), uint16(frame[2])<<8|uint16(frame[3]))
	assert.Equal(t, []byte{0x00, 0x08}, frame[4:6], "group is big-endian")
	assert.Equal(t, []byte{0x12, 0x34}, frame[6:8], "sequence is 16-bit big-endian")
	assert.Equal(t, FSCmdStatus, frame[8])
}

func TestDecode(t *testing.T) {
	env, err := BuildEchoCmd("hello")
	require.NoError(t, err)
	good, err := env.WithSeq(7).Encode()
	require.NoError(t, err)

	tests := []struct {
		name    string
		frame   []byte
		wantErr bool
	}{
		{name: "valid frame", frame: good},
		{name: "too short", frame: good[:4], wantErr: true},
		{name: "truncated payload", frame: good[:len(good)-1], wantErr: true},
		{name: "trailing bytes", frame: append(append([]byte{}, good...), 0x00), wantErr: true},
		{name: "malformed cbor", frame: []byte{3, 0, 0, 1, 0, 0, 0, 1, 0, 0xff}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.frame)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsDecodeError(err), "want DecodeError, got %T", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint16(7), got.Header.Seq)
			assert.Equal(t, env.Payload, got.Payload)
		})
	}
}

func TestFrameLength(t *testing.T) {
	env, err := BuildFileHashCmd("/some/file")
	require.NoError(t, err)
	frame, err := env.Encode()
	require.NoError(t, err)

	n, err := FrameLength(frame[:HeaderSize])
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
}

func TestAnswers(t *testing.T) {
	req, err := BuildFileStatusCmd("/a")
	require.NoError(t, err)
	req = req.WithSeq(3)

	rsp, err := NewResponse(req, &FileStatusResponse{Len: 1})
	require.NoError(t, err)
	assert.True(t, rsp.Answers(req))

	other := rsp.WithSeq(4)
	assert.False(t, other.Answers(req))
}
