package errs

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappedKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		want string
	}{
		{"argument", Argument("target %q not found", "/x"), ErrArgument, "argument"},
		{"archive", Archive(nil, "not a zip"), ErrArchive, "archive"},
		{"io", IO(os.ErrPermission, "rename %s", "a"), ErrIO, "io"},
		{"integrity", Integrity("hash mismatch"), ErrIntegrity, "integrity"},
		{"elevation", Elevation(nil, "denied"), ErrElevation, "elevation"},
		{"callback", CallbackTimeout(nil, "no contact"), ErrCallbackTimeout, "callback-timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := IO(os.ErrPermission, "rename %s", "sample.txt")

	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "rename sample.txt")
}

func TestKindUnknown(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "unknown", Kind(errors.New("boom")))
}
