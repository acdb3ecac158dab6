// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
)

// ObjectID is the globally unique identifier of a remote object instance.
// It is a random 128-bit value and is compared by value.
type ObjectID uuid.UUID

// NewObjectID returns a fresh random identifier.
func NewObjectID() ObjectID {
	return ObjectID(uuid.New())
}

// ParseObjectID parses the canonical text form produced by String.
func ParseObjectID(s string) (ObjectID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ObjectID{}, fmt.Errorf("parse object id %q: %w", s, err)
	}
	return ObjectID(id), nil
}

// Value returns the low 64 bits of the identifier.
func (id ObjectID) Value() uint64 {
	return binary.BigEndian.Uint64(id[8:])
}

func (id ObjectID) String() string {
	return uuid.UUID(id).String()
}

func (id ObjectID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *ObjectID) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return err
	}
	*id = ObjectID(u)
	return nil
}

// AbsoluteObjectReference identifies a remote object and the process that
// hosts it. It is an immutable value; two references are interchangeable
// when all fields are equal.
type AbsoluteObjectReference struct {
	ObjectID  ObjectID `json:"objectId"`
	Host      string   `json:"host"`
	Port      uint16   `json:"port"`
	InvokerID int32    `json:"invokerId"`
}

// NewReference builds a reference to the object id hosted at host:port and
// serviced by the invoker with the given id.
func NewReference(id ObjectID, host string, port uint16, invokerID int32) AbsoluteObjectReference {
	return AbsoluteObjectReference{
		ObjectID:  id,
		Host:      host,
		Port:      port,
		InvokerID: invokerID,
	}
}

// Addr returns the "host:port" form used to dial and to key the
// connection cache.
func (r AbsoluteObjectReference) Addr() string {
	return joinAddr(r.Host, r.Port)
}

func (r AbsoluteObjectReference) String() string {
	return fmt.Sprintf("%s@%s#%d", r.ObjectID, r.Addr(), r.InvokerID)
}

func joinAddr(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
