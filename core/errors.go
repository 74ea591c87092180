package core

import (
	"errors"
	"fmt"
)

// Codec failure kinds. A CodecError always unwraps to exactly one of these.
var (
	ErrWrongInputType  = errors.New("wrong input type")
	ErrSizeMismatch    = errors.New("size mismatch")
	ErrBufferTooSmall  = errors.New("buffer too small")
	ErrCorruptStream   = errors.New("corrupt stream")
	ErrUnsupportedType = errors.New("unsupported type")
)

// ErrOutOfRange is returned for coordinates outside the pyramid.
var ErrOutOfRange = errors.New("position out of range")

// ConfigError reports an invalid dataset description.
type ConfigError struct {
	Message string
	Field   string
	Value   string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config error for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// IOError reports a failed file operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CodecError reports a page encode or decode failure.
type CodecError struct {
	Codec CompressionType
	Op    string
	Kind  error
	Err   error
}

func NewCodecError(codec CompressionType, op string, kind, err error) *CodecError {
	return &CodecError{Codec: codec, Op: op, Kind: kind, Err: err}
}

func (e *CodecError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Codec, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Codec, e.Op, e.Kind, e.Err)
}

func (e *CodecError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IndexConsistencyError reports an index that disagrees with the files on
// disk: an index shorter than the pyramid requires, or a record whose byte
// range lies past the end of the data file.
type IndexConsistencyError struct {
	Path   string
	Offset int64
	Size   int64
	Limit  int64
}

func (e *IndexConsistencyError) Error() string {
	if e.Size == 0 {
		return fmt.Sprintf("index %s too small: %d bytes, need %d", e.Path, e.Offset, e.Limit)
	}
	return fmt.Sprintf("record [%d,+%d) past end of %s (%d bytes)", e.Offset, e.Size, e.Path, e.Limit)
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var configError *ConfigError
	return errors.As(err, &configError)
}

func IsIOError(err error) bool {
	var ioError *IOError
	return errors.As(err, &ioError)
}

func IsCodecError(err error) bool {
	var codecError *CodecError
	return errors.As(err, &codecError)
}

func IsIndexConsistencyError(err error) bool {
	var indexError *IndexConsistencyError
	return errors.As(err, &indexError)
}
