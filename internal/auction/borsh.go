package auction

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// BorshReader walks Borsh-serialized account data little-endian field by field.
type BorshReader struct {
	data []byte
	pos  int
}

func NewBorshReader(data []byte) *BorshReader {
	return &BorshReader{data: data}
}

func (r *BorshReader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *BorshReader) ReadU8() (uint8, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("buffer underflow: need 1 byte, have %d", r.Remaining())
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *BorshReader) ReadU64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("buffer underflow: need 8 bytes, have %d", r.Remaining())
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *BorshReader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// ReadPubkey reads a 32-byte public key and returns it base58 encoded.
func (r *BorshReader) ReadPubkey() (string, error) {
	if r.pos+32 > len(r.data) {
		return "", fmt.Errorf("buffer underflow: need 32 bytes for pubkey, have %d", r.Remaining())
	}
	pubkey := r.data[r.pos : r.pos+32]
	r.pos += 32
	return base58.Encode(pubkey), nil
}

func (r *BorshReader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadOption reads the 1-byte presence flag of an Option<T>. When it returns
// true the caller reads the value next.
func (r *BorshReader) ReadOption() (bool, error) {
	return r.ReadBool()
}

func (r *BorshReader) Skip(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("buffer underflow: cannot skip %d bytes, have %d", n, r.Remaining())
	}
	r.pos += n
	return nil
}
