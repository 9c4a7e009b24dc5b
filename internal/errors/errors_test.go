package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "remote with reason",
			err:  Remote("mkdir", "lib/", ReasonAuth, errors.New("E170001")),
			want: "mkdir lib/ (authentication): E170001",
		},
		{
			name: "filesystem",
			err:  Filesystem("read dir", "/tmp/target", fs.ErrNotExist),
			want: "read dir /tmp/target: file does not exist",
		},
		{
			name: "configuration without op",
			err:  Configurationf("repository URL is required"),
			want: "configuration: repository URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	remote := Remote("update", "wc", ReasonNetwork, errors.New("timeout"))
	wrapped := fmt.Errorf("item 1: %w", remote)

	assert.True(t, IsRemote(wrapped))
	assert.False(t, IsConfiguration(wrapped))
	assert.False(t, IsFilesystem(wrapped))
	assert.False(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, KindRemote, KindOf(wrapped))
	assert.Equal(t, ReasonNetwork, ReasonOf(wrapped))
}

func TestConflict_IsConflictAndRemote(t *testing.T) {
	err := Conflict("ensure", "a/b", errors.New("is a file"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.True(t, IsRemote(err))
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	err := Filesystem("open", "x", fs.ErrPermission)

	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
