// Package xdr implements the subset of RFC 4506 External Data
// Representation needed to speak ONC RPC and NFSv3: fixed and variable
// length opaque data, strings, booleans and (unsigned) integers, all
// rounded up to 4-byte units. No XDR codec exists anywhere in the
// retrieved example pack, so this is hand-rolled on encoding/binary,
// shaped after the ad-hoc xdr packages other NFS servers in the corpus
// carry (e.g. dittofs's internal/protocol/nfs/xdr).
package xdr

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrOverflow is returned when a decoded length claims more data than
// the message could possibly contain.
var ErrOverflow = errors.New("xdr: length prefix overflows remaining data")

// Encoder appends XDR-encoded values to an in-memory buffer.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutInt32(v int32) { e.PutUint32(uint32(v)) }

func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint32(1)
	} else {
		e.PutUint32(0)
	}
}

// PutOpaque encodes variable-length opaque data: a uint32 length
// followed by the bytes, padded with zeros to a 4-byte boundary.
func (e *Encoder) PutOpaque(data []byte) {
	e.PutUint32(uint32(len(data)))
	e.putPadded(data)
}

// PutFixedOpaque encodes data of a length the wire format fixes in
// advance: no length prefix, just padded bytes.
func (e *Encoder) PutFixedOpaque(data []byte) {
	e.putPadded(data)
}

func (e *Encoder) PutString(s string) {
	e.PutOpaque([]byte(s))
}

func (e *Encoder) putPadded(data []byte) {
	e.buf = append(e.buf, data...)
	if pad := (4 - len(data)%4) % 4; pad != 0 {
		e.buf = append(e.buf, make([]byte, pad)...)
	}
}

// Decoder reads XDR-encoded values from an in-memory buffer.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

// Remainder returns every byte not yet consumed, without advancing the
// cursor. Used once a header has been decoded and the rest of the
// message is handed off to a different decoder.
func (d *Decoder) Remainder() []byte {
	return d.buf[d.off:]
}

func (d *Decoder) need(n int) error {
	if d.off+n > len(d.buf) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (d *Decoder) GetUint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *Decoder) GetInt32() (int32, error) {
	v, err := d.GetUint32()
	return int32(v), err
}

func (d *Decoder) GetUint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *Decoder) GetBool() (bool, error) {
	v, err := d.GetUint32()
	return v != 0, err
}

func (d *Decoder) GetOpaque(maxLen int) ([]byte, error) {
	n, err := d.GetUint32()
	if err != nil {
		return nil, err
	}
	if maxLen > 0 && int(n) > maxLen {
		return nil, ErrOverflow
	}
	return d.getFixed(int(n))
}

func (d *Decoder) GetFixedOpaque(n int) ([]byte, error) {
	return d.getFixed(n)
}

func (d *Decoder) getFixed(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrOverflow
	}
	padded := (n + 3) &^ 3
	if err := d.need(padded); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:d.off+n])
	d.off += padded
	return out, nil
}

func (d *Decoder) GetString(maxLen int) (string, error) {
	b, err := d.GetOpaque(maxLen)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
