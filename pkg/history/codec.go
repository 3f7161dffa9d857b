package history

import (
	"fmt"
	"reflect"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("history: cbor encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("history: cbor decode mode: %v", err))
	}
}

// Encode serializes a block. Encoding is canonical: equal blocks give equal bytes.
func Encode(block *domain.CommonHistoryBlock) ([]byte, error) {
	data, err := encMode.Marshal(block)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history block %q: %w", block.StateName, err)
	}
	return data, nil
}

// Decode deserializes a block produced by Encode.
func Decode(data []byte) (*domain.CommonHistoryBlock, error) {
	var block domain.CommonHistoryBlock
	if err := decMode.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("failed to decode history block: %w", err)
	}
	return &block, nil
}

// EncodeValue serializes a single named value.
func EncodeValue(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// DecodeValue deserializes a value produced by EncodeValue.
func DecodeValue(data []byte) (any, error) {
	var v any
	if err := decMode.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Normalize returns a copy of bag holding the values Decode yields for it.
// Unsigned integers become uint64, negative ones int64, floats float64,
// slices []any and maps map[string]any, so a live bag compares equal to
// its replayed form.
func Normalize(bag domain.DataBag) (domain.DataBag, error) {
	if bag == nil {
		return nil, nil
	}
	raw, err := encMode.Marshal(bag)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize data bag: %w", err)
	}
	var out domain.DataBag
	if err := decMode.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize data bag: %w", err)
	}
	return out, nil
}
