package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFileStatusCmd(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "valid path", path: "/lfs/data.bin"},
		{name: "empty path", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := BuildFileStatusCmd(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, OpRead, env.Header.Op)
			assert.Equal(t, GroupFS, env.Header.Group)
			assert.Equal(t, FSCmdStatus, env.Header.ID)
			assert.Equal(t, uint16(len(env.Payload)), env.Header.Length)

			var req map[string]interface{}
			require.NoError(t, env.Unmarshal(&req))
			assert.Equal(t, map[string]interface{}{"name": tt.path}, req)
		})
	}
}

func TestBuildFileHashCmd(t *testing.T) {
	env, err := BuildFileHashCmd("/lfs/a")
	require.NoError(t, err)

	var req FileHashRequest
	require.NoError(t, env.Unmarshal(&req))
	assert.Equal(t, "/lfs/a", req.Name)
	assert.Equal(t, "sha256", req.Type)
	assert.Equal(t, FSCmdHash, env.Header.ID)
}

func TestBuildFileUploadCmd(t *testing.T) {
	total := uint64(100)

	tests := []struct {
		name    string
		off     uint64
		data    []byte
		total   *uint64
		wantLen bool
	}{
		{name: "first chunk carries len", off: 0, data: []byte{1, 2, 3}, total: &total, wantLen: true},
		{name: "later chunk omits len", off: 3, data: []byte{4, 5}, total: nil, wantLen: false},
		{name: "nil data encodes empty bytes", off: 5, data: nil, total: nil, wantLen: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := BuildFileUploadCmd("/f", tt.off, tt.data, tt.total)
			require.NoError(t, err)
			assert.Equal(t, OpWrite, env.Header.Op)

			var req map[string]interface{}
			require.NoError(t, env.Unmarshal(&req))
			_, hasLen := req["len"]
			assert.Equal(t, tt.wantLen, hasLen)
			assert.Equal(t, tt.off, req["off"])
			assert.NotNil(t, req["data"])
		})
	}
}

func TestBuildImageCmds(t *testing.T) {
	hash := make([]byte, SHA256Size)

	_, err := BuildImageTestCmd([]byte{1, 2})
	assert.Error(t, err, "short hash must be rejected")

	env, err := BuildImageTestCmd(hash)
	require.NoError(t, err)
	var req ImageStateWriteRequest
	require.NoError(t, env.Unmarshal(&req))
	assert.False(t, req.Confirm)

	env, err = BuildImageConfirmCmd(nil)
	require.NoError(t, err)
	req = ImageStateWriteRequest{}
	require.NoError(t, env.Unmarshal(&req))
	assert.True(t, req.Confirm)
	assert.Empty(t, req.Hash)

	total := uint64(10)
	env, err = BuildImageUploadCmd(0, 0, []byte{1}, &total, hash)
	require.NoError(t, err)
	var up ImageUploadRequest
	require.NoError(t, env.Unmarshal(&up))
	require.NotNil(t, up.Len)
	assert.Equal(t, total, *up.Len)
	assert.Equal(t, hash, up.SHA)

	env, err = BuildResetCmd()
	require.NoError(t, err)
	assert.Equal(t, GroupOS, env.Header.Group)
	assert.Equal(t, OSCmdReset, env.Header.ID)
}
