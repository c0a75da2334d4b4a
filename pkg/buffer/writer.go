package buffer

import (
	"encoding/binary"
	"io"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/riftpg/pgwire/pkg/types"
)

// Writer provides a convenient way to write pgwire frontend messages to a
// backend connection. A Writer is reused across messages: Start resets the
// frame, the Add* methods append to it, End flushes it and resets the frame;
// Release returns the frame to the pool.
type Writer struct {
	io.Writer
	logger *zap.Logger
	frame  *bytebufferpool.ByteBuffer
	putbuf [64]byte
	err    error
}

// NewWriter constructs a new Postgres buffered message writer for the given io.Writer
func NewWriter(logger *zap.Logger, writer io.Writer) *Writer {
	return &Writer{
		logger: logger,
		Writer: writer,
		frame:  bytebufferpool.Get(),
	}
}

// Start resets the buffer writer and starts a new message with the given
// frontend message type. The message type (byte) and reserved message length
// bytes (int32) are written to the underlying frame buffer.
func (writer *Writer) Start(t types.ClientMessage) {
	writer.Reset()
	writer.putbuf[0] = byte(t)
	writer.frame.Write(writer.putbuf[:5]) // message type + message length
}

// StartUntyped resets the buffer writer and starts a new length-prefixed,
// untyped message. This is used for the startup message, SSLRequest and
// CancelRequest, which precede any type tag being negotiated.
func (writer *Writer) StartUntyped() {
	writer.Reset()
	writer.frame.Write(writer.putbuf[:4]) // message length only
}

// AddByte writes the given byte to the writer frame.
func (writer *Writer) AddByte(b byte) {
	if writer.err != nil {
		return
	}

	writer.err = writer.frame.WriteByte(b)
}

// AddInt16 writes the given int16 to the writer frame, big-endian.
func (writer *Writer) AddInt16(i int16) (size int) {
	if writer.err != nil {
		return size
	}

	var x [2]byte
	binary.BigEndian.PutUint16(x[:], uint16(i))
	size, writer.err = writer.frame.Write(x[:])
	return size
}

// AddInt32 writes the given int32 to the writer frame, big-endian.
func (writer *Writer) AddInt32(i int32) (size int) {
	if writer.err != nil {
		return size
	}

	var x [4]byte
	binary.BigEndian.PutUint32(x[:], uint32(i))
	size, writer.err = writer.frame.Write(x[:])
	return size
}

// AddInt64 writes the given int64 to the writer frame, big-endian.
func (writer *Writer) AddInt64(i int64) (size int) {
	if writer.err != nil {
		return size
	}

	var x [8]byte
	binary.BigEndian.PutUint64(x[:], uint64(i))
	size, writer.err = writer.frame.Write(x[:])
	return size
}

// AddBytes writes the given raw bytes to the writer frame.
func (writer *Writer) AddBytes(b []byte) (size int) {
	if writer.err != nil {
		return size
	}

	size, writer.err = writer.frame.Write(b)
	return size
}

// AddString writes the given string to the writer frame.
func (writer *Writer) AddString(s string) (size int) {
	if writer.err != nil {
		return size
	}

	size, writer.err = writer.frame.WriteString(s)
	return size
}

// AddNullTerminate writes a NUL terminator to the end of the frame.
func (writer *Writer) AddNullTerminate() {
	if writer.err != nil {
		return
	}

	writer.err = writer.frame.WriteByte(0)
}

func (writer *Writer) Error() error {
	return writer.err
}

// Bytes returns the bytes written to the active frame.
func (writer *Writer) Bytes() []byte {
	return writer.frame.Bytes()
}

// Reset resets the frame to be empty.
func (writer *Writer) Reset() {
	writer.frame.Reset()
	writer.err = nil
}

// Release returns the frame's backing buffer to the shared pool. Call once
// the writer is no longer needed (session close).
func (writer *Writer) Release() {
	bytebufferpool.Put(writer.frame)
	writer.frame = nil
}

// End writes the prepared message to the underlying io.Writer and resets the
// buffer. The message length is patched in after the type/length header.
func (writer *Writer) End() error {
	defer writer.Reset()
	if writer.Error() != nil {
		return writer.Error()
	}

	raw := writer.frame.Bytes()

	length := uint32(len(raw) - 1) // total length minus the type byte
	binary.BigEndian.PutUint32(raw[1:5], length)
	_, err := writer.Write(raw)

	if writer.logger != nil {
		writer.logger.Debug("-> writing message", zap.String("type", types.ClientMessage(raw[0]).String()))
	}

	return err
}

// EndUntyped finalizes a message started with StartUntyped, where the
// 4-byte length prefix covers the entire message including itself.
func (writer *Writer) EndUntyped() error {
	defer writer.Reset()
	if writer.Error() != nil {
		return writer.Error()
	}

	raw := writer.frame.Bytes()
	binary.BigEndian.PutUint32(raw[0:4], uint32(len(raw)))
	_, err := writer.Write(raw)
	return err
}
