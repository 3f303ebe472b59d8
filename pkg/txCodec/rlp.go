package txCodec

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

type Kind int

const (
	Kind_String Kind = iota
	Kind_List
)

var (
	ErrUnexpectedEnd    = errors.New("rlp: unexpected end of input")
	ErrNonCanonical     = errors.New("rlp: non-canonical encoding")
	ErrTrailingBytes    = errors.New("rlp: trailing bytes after item")
	ErrExpectedString   = errors.New("rlp: expected string")
	ErrExpectedList     = errors.New("rlp: expected list")
	ErrIntegerTooLarge  = errors.New("rlp: integer exceeds 256 bits")
	ErrNonCanonicalUint = errors.New("rlp: integer has leading zero bytes")
)

// Item is one decoded RLP value. Strings carry Bytes, lists carry Items.
type Item struct {
	Kind  Kind
	Bytes []byte
	Items []Item
}

// DecodeItem decodes the item starting at offset and returns it with the offset of the byte after it.
// Byte slices in the result alias buf.
func DecodeItem(buf []byte, offset int) (Item, int, error) {
	if offset < 0 || offset >= len(buf) {
		return Item{}, offset, ErrUnexpectedEnd
	}
	prefix := buf[offset]

	switch {
	case prefix < 0x80:
		return Item{Kind: Kind_String, Bytes: buf[offset : offset+1]}, offset + 1, nil

	case prefix <= 0xb7:
		size := int(prefix - 0x80)
		start := offset + 1
		if start+size > len(buf) {
			return Item{}, offset, ErrUnexpectedEnd
		}
		if size == 1 && buf[start] < 0x80 {
			return Item{}, offset, ErrNonCanonical
		}
		return Item{Kind: Kind_String, Bytes: buf[start : start+size]}, start + size, nil

	case prefix <= 0xbf:
		size, start, err := readLongLength(buf, offset, int(prefix-0xb7))
		if err != nil {
			return Item{}, offset, err
		}
		return Item{Kind: Kind_String, Bytes: buf[start : start+size]}, start + size, nil

	case prefix <= 0xf7:
		size := int(prefix - 0xc0)
		start := offset + 1
		if start+size > len(buf) {
			return Item{}, offset, ErrUnexpectedEnd
		}
		items, err := decodeListPayload(buf, start, start+size)
		if err != nil {
			return Item{}, offset, err
		}
		return Item{Kind: Kind_List, Items: items}, start + size, nil

	default:
		size, start, err := readLongLength(buf, offset, int(prefix-0xf7))
		if err != nil {
			return Item{}, offset, err
		}
		items, err := decodeListPayload(buf, start, start+size)
		if err != nil {
			return Item{}, offset, err
		}
		return Item{Kind: Kind_List, Items: items}, start + size, nil
	}
}

// DecodeFull decodes exactly one item that must span all of buf.
func DecodeFull(buf []byte) (Item, error) {
	item, next, err := DecodeItem(buf, 0)
	if err != nil {
		return Item{}, err
	}
	if next != len(buf) {
		return Item{}, ErrTrailingBytes
	}
	return item, nil
}

// readLongLength reads a big-endian payload length of lenOfLen bytes following the prefix at offset.
func readLongLength(buf []byte, offset int, lenOfLen int) (int, int, error) {
	lenStart := offset + 1
	if lenStart+lenOfLen > len(buf) {
		return 0, 0, ErrUnexpectedEnd
	}
	if buf[lenStart] == 0 {
		return 0, 0, ErrNonCanonical
	}
	// payloads beyond 2^32 cannot fit in a transaction
	if lenOfLen > 4 {
		return 0, 0, ErrUnexpectedEnd
	}
	size := 0
	for _, b := range buf[lenStart : lenStart+lenOfLen] {
		size = size<<8 | int(b)
	}
	if size < 56 {
		return 0, 0, ErrNonCanonical
	}
	start := lenStart + lenOfLen
	if size > len(buf)-start {
		return 0, 0, ErrUnexpectedEnd
	}
	return size, start, nil
}

func decodeListPayload(buf []byte, start int, end int) ([]Item, error) {
	payload := buf[:end]
	items := make([]Item, 0)
	for offset := start; offset < end; {
		item, next, err := DecodeItem(payload, offset)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		offset = next
	}
	return items, nil
}

func (i Item) IsString() bool {
	return i.Kind == Kind_String
}

func (i Item) IsList() bool {
	return i.Kind == Kind_List
}

// Uint256 reads a string item as a canonical big-endian unsigned integer.
func (i Item) Uint256() (*uint256.Int, error) {
	if !i.IsString() {
		return nil, ErrExpectedString
	}
	if len(i.Bytes) > 32 {
		return nil, ErrIntegerTooLarge
	}
	if len(i.Bytes) > 0 && i.Bytes[0] == 0 {
		return nil, ErrNonCanonicalUint
	}
	return new(uint256.Int).SetBytes(i.Bytes), nil
}

func (i Item) Uint64() (uint64, error) {
	v, err := i.Uint256()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, ErrIntegerTooLarge
	}
	return v.Uint64(), nil
}
