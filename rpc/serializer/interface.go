package serializer

import (
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/common"
	"strings"
)

// IRPCSerializer is the interface for all Message Serializers (the codec of a link)
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into a Message
	// It takes a byte array and a pointer to a Message as parameters
	// It returns an error if any
	Deserialize(b []byte, msg *common.Message) error
	// Name returns the identifier of the codec (e.g. "json")
	Name() string
}

// Names lists the identifiers accepted by ByName
var Names = []string{"json", "gob", "binary"}

// ByName creates a serializer from its identifier
func ByName(name string) (IRPCSerializer, error) {
	switch strings.ToLower(name) {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s (expected one of %s)", name, strings.Join(Names, ", "))
	}
}
