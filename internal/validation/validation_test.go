package validation

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/sketchduel/internal/errclass"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	gifBytes = append([]byte("GIF89a"), make([]byte, 32)...)
)

func dataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func TestPlayerName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "Ana", "Ana", false},
		{"trimmed", "  Ana  ", "Ana", false},
		{"nfc", "José", "José", false},
		{"twenty runes", strings.Repeat("é", 20), strings.Repeat("é", 20), false},
		{"too long", strings.Repeat("a", 21), "", true},
		{"empty", "   ", "", true},
		{"angle bracket", "<b>", "", true},
		{"ampersand", "a&b", "", true},
		{"quote", `say "hi"`, "", true},
		{"apostrophe", "o'neil", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlayerName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errclass.KindInvalidName, errclass.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoomCode(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"ABC123", "ABC123", false},
		{"abc123", "ABC123", false},
		{" xy9z8q ", "XY9Z8Q", false},
		{"ABC12", "", true},
		{"ABC1234", "", true},
		{"ABC-12", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := RoomCode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errclass.KindInvalidRoomCode, errclass.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"png", dataURL("image/png", pngBytes), false},
		{"gif", dataURL("image/gif", gifBytes), false},
		{"not a data url", "https://example.com/x.png", true},
		{"unsupported type", dataURL("image/bmp", pngBytes), true},
		{"mismatched content", dataURL("image/png", gifBytes), true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Image(tt.input)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errclass.KindInvalidDrawingData, errclass.KindOf(err))
		})
	}
}

func TestImage_TooLarge(t *testing.T) {
	big := make([]byte, MaxImageBytes+1)
	copy(big, pngBytes)
	err := Image(dataURL("image/png", big))
	require.Error(t, err)
	assert.Equal(t, errclass.KindInvalidDrawingData, errclass.KindOf(err))
	assert.Contains(t, err.Error(), "limit")
}

func TestVote(t *testing.T) {
	options := []string{"cat", "dog", "sun"}

	assert.NoError(t, Vote("dog", options))

	err := Vote("moon", options)
	require.Error(t, err)
	assert.Equal(t, errclass.KindInvalidVote, errclass.KindOf(err))

	err = Vote("", options)
	assert.Equal(t, errclass.KindInvalidVote, errclass.KindOf(err))

	assert.Error(t, Vote("cat", nil), "no options offered")
}

func TestValidationErrorsNotRetryable(t *testing.T) {
	_, err := PlayerName("")
	assert.False(t, errclass.IsRetryable(err))
}
