package bridge

import (
	"io"

	"github.com/wippyai/xml-bridge/errors"
	"github.com/wippyai/xml-bridge/vm"
)

// materialize turns a parse input into host bytes. Readers are drained
// completely; limit bounds the result when positive.
func materialize(input any, limit int64) ([]byte, error) {
	var data []byte
	switch v := input.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case io.Reader:
		return readAll(v, limit)
	default:
		return nil, errors.InvalidInputKind(input)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errors.TooLarge(errors.PhaseMarshal, int64(len(data)), limit)
	}
	return data, nil
}

func readAll(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.ReadFailed(errors.PhaseMarshal, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errors.TooLarge(errors.PhaseMarshal, int64(len(data)), limit)
	}
	return data, nil
}

// toForeignBuffer copies data into a new foreign byte array held by t's local
// frame. A full heap surfaces as an OutOfMemoryError.
func toForeignBuffer(t *vm.Thread, data []byte) (vm.Ref, *vm.Throwable) {
	return t.NewByteArray(data)
}
