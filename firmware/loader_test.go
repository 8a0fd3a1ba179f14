package firmware

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReader(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		format  Format
		base    uint32
		wantErr bool
		errMsg  string
	}{
		{
			name:   "raw binary",
			input:  "\x7fELF not really",
			want:   []byte("\x7fELF not really"),
			format: FormatBinary,
		},
		{
			name: "intel hex with gap",
			input: ":0400000001020304F2\n" +
				":020004000506EF\n" +
				":0100080009EE\n" +
				":00000001FF\n",
			want:   []byte{1, 2, 3, 4, 5, 6, 0xFF, 0xFF, 9},
			format: FormatIntelHex,
		},
		{
			name: "intel hex with extended linear address",
			input: "\r\n:020000040001F9\r\n" +
				":0400000001020304F2\r\n" +
				":00000001FF\r\n",
			want:   []byte{1, 2, 3, 4},
			format: FormatIntelHex,
			base:   0x00010000,
		},
		{
			name:    "missing end of file",
			input:   ":0400000001020304F2\n",
			wantErr: true,
			errMsg:  "missing end of file",
		},
		{
			name:    "bad checksum",
			input:   ":0400000001020304F3\n:00000001FF\n",
			wantErr: true,
			errMsg:  "line 1: checksum mismatch",
		},
		{
			name:    "overlapping records",
			input:   ":0400000001020304F2\n:01000200AA53\n:00000001FF\n",
			wantErr: true,
			errMsg:  "overlapping data",
		},
		{
			name:    "record after end of file",
			input:   ":00000001FF\n:0400000001020304F2\n",
			wantErr: true,
			errMsg:  "line 2: record after end of file",
		},
		{
			name:    "short record",
			input:   ":0000\n",
			wantErr: true,
			errMsg:  "record too short",
		},
		{
			name:    "only end of file",
			input:   ":00000001FF\n",
			wantErr: true,
			errMsg:  "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := LoadReader(strings.NewReader(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, img.Data)
			assert.Equal(t, tt.format, img.Format)
			assert.Equal(t, tt.base, img.BaseAddress)
			assert.Equal(t, sha256.Sum256(tt.want), img.Hash)
			assert.Equal(t, len(tt.want), img.Size())
		})
	}
}

func TestLoadReaderEmpty(t *testing.T) {
	_, err := LoadReader(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.bin")
	require.NoError(t, os.WriteFile(path, []byte("firmware bytes"), 0o600))

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("firmware bytes"), img.Data)

	_, err = Load(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestValidate(t *testing.T) {
	img := New([]byte("0123456789"))
	assert.NoError(t, img.Validate(0))
	assert.NoError(t, img.Validate(10))

	err := img.Validate(9)
	var sizeErr *SizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 10, sizeErr.Size)
	assert.Equal(t, 9, sizeErr.Max)

	assert.ErrorIs(t, New(nil).Validate(0), ErrEmpty)

	var nilImage *Image
	assert.ErrorIs(t, nilImage.Validate(0), ErrEmpty)

	tampered := New([]byte("abc"))
	tampered.Data[0] = 'x'
	assert.Error(t, tampered.Validate(0))
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "binary", FormatBinary.String())
	assert.Equal(t, "intel-hex", FormatIntelHex.String())
	assert.Equal(t, "format(7)", Format(7).String())
}
