package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	err := New(CodeArchiveNotFound, "archive missing", FieldArchiveID("sessions_1_abc"))
	require.Equal(t, CodeArchiveNotFound, CodeOf(err))
	require.True(t, IsNotFound(err))
	require.Equal(t, "sessions_1_abc", FieldsOf(err)["archive_id"])
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(cause, CodeStorageWriteFailure, "persist payload")
	require.ErrorIs(t, err, cause)
	require.True(t, HasCode(err, CodeStorageWriteFailure))
	require.Nil(t, Wrap(nil, CodeStorageWriteFailure, "noop"))
}

func TestPlainErrorHasNoCode(t *testing.T) {
	require.Equal(t, Code(""), CodeOf(stderrors.New("plain")))
	require.Equal(t, Code(""), CodeOf(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", New(CodeArchiveNotFound, "x"), http.StatusNotFound},
		{"invalid data", New(CodeArchiveDataInvalid, "x"), http.StatusBadRequest},
		{"invalid config", New(CodeConfigValidateInvalid, "x"), http.StatusBadRequest},
		{"queue timeout", New(CodeEngineQueueTimeout, "x"), http.StatusGatewayTimeout},
		{"closed", New(CodeEngineClosed, "x"), http.StatusServiceUnavailable},
		{"storage", New(CodeStorageWriteFailure, "x"), http.StatusInternalServerError},
		{"plain", stderrors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
