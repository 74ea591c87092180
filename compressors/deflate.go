package compressors

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/INLOpen/mrfstore/core"
	"github.com/klauspost/compress/zlib"
)

// DeflateCodec stores pages as zlib streams.
type DeflateCodec struct {
	spec   core.PageSpec
	order  byteOrder
	level  int
	writer sync.Pool
}

var _ core.PageCodec = (*DeflateCodec)(nil)

// DeflateLevel maps a 0-99 quality to a zlib level.
func DeflateLevel(quality int) int {
	return min(max(quality/10, 0), 9)
}

func NewDeflateCodec(spec core.PageSpec) *DeflateCodec {
	c := &DeflateCodec{spec: spec, order: newByteOrder(spec), level: DeflateLevel(spec.Quality)}
	c.writer.New = func() interface{} {
		w, err := zlib.NewWriterLevel(nil, c.level)
		if err != nil {
			// level is clamped to a valid range
			panic(err)
		}
		return w
	}
	return c
}

func (c *DeflateCodec) Compress(dst, src []byte) (int, error) {
	if err := checkRaw(c.Type(), "compress", c.spec, src); err != nil {
		return 0, err
	}
	buf := core.GetBuffer()
	defer core.PutBuffer(buf)
	var scratch []byte
	if c.order.swap {
		scratch = make([]byte, len(src))
	}

	w := c.writer.Get().(*zlib.Writer)
	defer c.writer.Put(w)
	w.Reset(buf)
	if _, err := w.Write(c.order.stored(src, scratch)); err != nil {
		_ = w.Close()
		return 0, core.NewCodecError(c.Type(), "compress", core.ErrCorruptStream, err)
	}
	if err := w.Close(); err != nil {
		return 0, core.NewCodecError(c.Type(), "compress", core.ErrCorruptStream, err)
	}
	return copyOut(c.Type(), dst, buf.Bytes())
}

func (c *DeflateCodec) Decompress(dst, src []byte) error {
	if err := checkRaw(c.Type(), "decompress", c.spec, dst); err != nil {
		return err
	}
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return core.NewCodecError(c.Type(), "decompress", core.ErrCorruptStream, err)
	}
	defer r.Close()
	if err := readExactly(r, dst); err != nil {
		return core.NewCodecError(c.Type(), "decompress", classifyReadError(err), err)
	}
	c.order.load(dst)
	return nil
}

func (c *DeflateCodec) Type() core.CompressionType {
	return core.CompressionDeflate
}

var errTrailingData = errors.New("stream longer than page")

// readExactly fills dst from r and checks that r has nothing left.
func readExactly(r io.Reader, dst []byte) error {
	if _, err := io.ReadFull(r, dst); err != nil {
		return err
	}
	var one [1]byte
	n, err := r.Read(one[:])
	if n > 0 {
		return errTrailingData
	}
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

func classifyReadError(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || errors.Is(err, errTrailingData) {
		return core.ErrSizeMismatch
	}
	return core.ErrCorruptStream
}

func sizeMismatch(ct core.CompressionType, got, want int) error {
	return core.NewCodecError(ct, "decompress", core.ErrSizeMismatch, fmt.Errorf("decoded %d bytes, want %d", got, want))
}
