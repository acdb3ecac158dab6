// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Marshaller turns invocations and replies into payload bytes and back.
// Implementations must wrap failures with ErrMarshal.
type Marshaller interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Reply is the envelope the server writes back for every invocation.
type Reply struct {
	Result any         `json:"result,omitempty"`
	Error  *ReplyError `json:"error,omitempty"`
}

// JSONMarshaller is the default Marshaller. Numbers are decoded as
// json.Number so invokers can bind them to the declared numeric type
// without loss.
type JSONMarshaller struct{}

func (JSONMarshaller) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, marshalError(fmt.Sprintf("encode %T", v), err)
	}
	return data, nil
}

func (JSONMarshaller) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return marshalError(fmt.Sprintf("decode %T", v), err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return marshalError(fmt.Sprintf("decode %T", v), fmt.Errorf("trailing data after value"))
	}
	return nil
}

// defaultMarshaller is used when no marshaller is specified
var defaultMarshaller Marshaller = JSONMarshaller{}
