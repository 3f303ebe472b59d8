package txCodec

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

type TxType byte

const (
	TxType_Legacy     TxType = 0x00
	TxType_AccessList TxType = 0x01
	TxType_DynamicFee TxType = 0x02
)

var (
	ErrEmptyTransaction   = errors.New("empty transaction")
	ErrUnsupportedTxType  = errors.New("unsupported transaction type")
	ErrWrongFieldCount    = errors.New("unexpected number of transaction fields")
	ErrInvalidToField     = errors.New("invalid destination field")
	ErrInvalidAccessList  = errors.New("invalid access list")
	ErrInvalidHexEncoding = errors.New("signed payload is not valid hex")
)

// Transaction holds the fields of a signed transaction the validator inspects.
type Transaction struct {
	Type TxType
	// nil for legacy transactions signed without replay protection
	ChainId *uint256.Int
	Nonce   uint64
	To      *common.Address
	Value   *uint256.Int
	Data    []byte
	V       *uint256.Int
	Hash    common.Hash
}

type fieldLayout struct {
	count   int
	chainId int
	nonce   int
	to      int
	value   int
	data    int
	access  int
	v       int
}

var layouts = map[TxType]fieldLayout{
	// [chainId, nonce, gasPrice, gasLimit, to, value, data, accessList, yParity, r, s]
	TxType_AccessList: {count: 11, chainId: 0, nonce: 1, to: 4, value: 5, data: 6, access: 7, v: 8},
	// [chainId, nonce, maxPriorityFee, maxFee, gasLimit, to, value, data, accessList, yParity, r, s]
	TxType_DynamicFee: {count: 12, chainId: 0, nonce: 1, to: 5, value: 6, data: 7, access: 8, v: 9},
	// [nonce, gasPrice, gasLimit, to, value, data, v, r, s]
	TxType_Legacy: {count: 9, chainId: -1, nonce: 0, to: 3, value: 4, data: 5, access: -1, v: 6},
}

// DecodeHex decodes a 0x-prefixed signed transaction.
func DecodeHex(payload string) (*Transaction, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(payload))
	if err != nil {
		return nil, ErrInvalidHexEncoding
	}
	return Decode(raw)
}

// Decode parses the network encoding of a signed transaction: a typed envelope for 0x01 and 0x02,
// a bare RLP list for legacy transactions.
func Decode(raw []byte) (*Transaction, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyTransaction
	}

	var txType TxType
	var body []byte
	switch {
	case raw[0] >= 0xc0:
		txType = TxType_Legacy
		body = raw
	case raw[0] == byte(TxType_AccessList) || raw[0] == byte(TxType_DynamicFee):
		txType = TxType(raw[0])
		body = raw[1:]
	default:
		return nil, errors.Wrapf(ErrUnsupportedTxType, "0x%02x", raw[0])
	}

	item, err := DecodeFull(body)
	if err != nil {
		return nil, err
	}
	if !item.IsList() {
		return nil, ErrExpectedList
	}
	layout := layouts[txType]
	if len(item.Items) != layout.count {
		return nil, errors.Wrapf(ErrWrongFieldCount, "type 0x%02x has %d fields", byte(txType), len(item.Items))
	}
	fields := item.Items

	tx := &Transaction{
		Type: txType,
		Hash: crypto.Keccak256Hash(raw),
	}

	if tx.Nonce, err = fields[layout.nonce].Uint64(); err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	if tx.To, err = decodeTo(fields[layout.to]); err != nil {
		return nil, err
	}
	if tx.Value, err = fields[layout.value].Uint256(); err != nil {
		return nil, errors.Wrap(err, "value")
	}
	if !fields[layout.data].IsString() {
		return nil, errors.Wrap(ErrExpectedString, "data")
	}
	tx.Data = fields[layout.data].Bytes
	if tx.V, err = fields[layout.v].Uint256(); err != nil {
		return nil, errors.Wrap(err, "v")
	}

	if layout.access >= 0 && !fields[layout.access].IsList() {
		return nil, ErrInvalidAccessList
	}
	for _, gasField := range gasFields(txType) {
		if _, err := fields[gasField].Uint256(); err != nil {
			return nil, errors.Wrap(err, "gas")
		}
	}
	for _, sig := range fields[layout.v+1:] {
		if _, err := sig.Uint256(); err != nil {
			return nil, errors.Wrap(err, "signature")
		}
	}

	if layout.chainId >= 0 {
		if tx.ChainId, err = fields[layout.chainId].Uint256(); err != nil {
			return nil, errors.Wrap(err, "chain id")
		}
	} else {
		tx.ChainId = legacyChainId(tx.V)
	}
	return tx, nil
}

func gasFields(txType TxType) []int {
	switch txType {
	case TxType_DynamicFee:
		return []int{2, 3, 4}
	case TxType_AccessList:
		return []int{2, 3}
	default:
		return []int{1, 2}
	}
}

func decodeTo(item Item) (*common.Address, error) {
	if !item.IsString() {
		return nil, ErrInvalidToField
	}
	switch len(item.Bytes) {
	case 0:
		return nil, nil
	case common.AddressLength:
		addr := common.BytesToAddress(item.Bytes)
		return &addr, nil
	default:
		return nil, ErrInvalidToField
	}
}

// legacyChainId derives the EIP-155 chain id from v. v of 27 or 28 carries no chain id.
func legacyChainId(v *uint256.Int) *uint256.Int {
	if v.LtUint64(35) {
		return nil
	}
	chainId := new(uint256.Int).SubUint64(v, 35)
	return chainId.Rsh(chainId, 1)
}
