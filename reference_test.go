// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectIDRoundTrip(t *testing.T) {
	id := NewObjectID()
	parsed, err := ParseObjectID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, id.Value(), parsed.Value())
}

func TestObjectIDValueIsLow64Bits(t *testing.T) {
	id, err := ParseObjectID("00112233-4455-6677-8899-aabbccddeeff")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x8899aabbccddeeff), id.Value())
	assert.Equal(t, binary.BigEndian.Uint64(id[8:]), id.Value())
}

func TestObjectIDUnique(t *testing.T) {
	seen := make(map[ObjectID]struct{})
	for i := 0; i < 1000; i++ {
		id := NewObjectID()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestParseObjectIDInvalid(t *testing.T) {
	_, err := ParseObjectID("not-an-id")
	require.Error(t, err)
}

func TestReferenceEquality(t *testing.T) {
	id := NewObjectID()
	a := NewReference(id, "localhost", 9000, 1)
	b := NewReference(id, "localhost", 9000, 1)
	assert.Equal(t, a, b)
	assert.True(t, a == b)

	c := NewReference(id, "localhost", 9000, 2)
	assert.False(t, a == c)
	assert.Equal(t, "localhost:9000", a.Addr())
	assert.Equal(t, "[::1]:9000", NewReference(id, "::1", 9000, 1).Addr())
}

func TestReferenceJSON(t *testing.T) {
	aor := NewReference(NewObjectID(), "10.0.0.7", 9000, 3)
	data, err := json.Marshal(aor)
	require.NoError(t, err)

	var got AbsoluteObjectReference
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, aor, got)
}
