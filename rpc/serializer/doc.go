// Package serializer provides the codecs used to encode RPC call envelopes
// (common.Message) on the wire. A codec is attached to a transport handle unchanged;
// neither the transport selector nor the links inspect or branch on it. Client and
// server must agree on the codec.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding. The default codec, human-readable and useful
//     for debugging or interoperability with other systems.
//
//   - binarySerializerImpl: Custom binary format using a flag byte to encode only the
//     fields that are present. Smallest payloads and fastest encoding.
//
//   - gobSerializerImpl: Go's gob encoding. Larger payloads and slower than both
//     alternatives, kept for compatibility.
//
//   - ByName: Factory used by the command line tools to pick a codec by identifier.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	codec, _ := serializer.ByName("json")
//	data, err := codec.Serialize(*common.NewQueryRequest("greeting.hello", input))
//	// ... send data ...
//	var resp common.Message
//	err = codec.Deserialize(received, &resp)
package serializer
