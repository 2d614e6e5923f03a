// Package errors defines the machine-readable error codes used across
// statvault. Errors carry a Code and structured fields through samber/oops.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeCodecStageFailure      Code = "codec.stage.failure"
	CodeCodecUnknownAlgorithm  Code = "codec.algorithm.not_found"
	CodeCodecPayloadInvalid    Code = "codec.payload.invalid"
	CodeArchiveDataInvalid     Code = "archive.data.invalid"
	CodeArchiveNotFound        Code = "archive.get.not_found"
	CodeArchiveChecksumDrift   Code = "archive.checksum.mismatch"
	CodeStorageWriteFailure    Code = "storage.write.failure"
	CodeStorageReadFailure     Code = "storage.read.failure"
	CodeEngineClosed           Code = "engine.closed"
	CodeEngineQueueTimeout     Code = "engine.queue.timeout"
	CodeConfigValidateInvalid  Code = "config.validate.invalid_value"
	CodeConfigLoadReadFailure  Code = "config.load.read.failure"
	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerInternalFailure  Code = "server.internal.failure"
	CodeSchedulerSourceFailure Code = "scheduler.source.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldArchiveID(value string) Attr {
	return Field("archive_id", value)
}

func FieldDataType(value string) Attr {
	return Field("data_type", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the innermost Code in the chain, or "" for plain errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

// FieldsOf returns the structured context attached to err.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_value"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

// HTTPStatus maps an error to the status code the HTTP layer should return.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case HasCode(err, CodeEngineClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeServerInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}
	parts := strings.Split(string(code), ".")
	return parts[len(parts)-1]
}
