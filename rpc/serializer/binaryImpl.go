package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	[1 byte MsgType][1 byte flags]{[4 byte length][data]}...
//
// Only fields whose flag is set are written, in flag order.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasProcedure byte = 1 << 0
	hasInput     byte = 1 << 1
	hasOutput    byte = 1 << 2
	hasErr       byte = 1 << 3
	hasMeta      byte = 1 << 4
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))

	result[0] = byte(msg.MsgType)

	var flags byte = 0
	pos := 2 // Start after MsgType and flags

	if msg.Procedure != "" {
		flags |= hasProcedure
		pos = putField(result, pos, []byte(msg.Procedure))
	}

	// nil and empty slices are distinguished by the flag
	if msg.Input != nil {
		flags |= hasInput
		pos = putField(result, pos, msg.Input)
	}

	if msg.Output != nil {
		flags |= hasOutput
		pos = putField(result, pos, msg.Output)
	}

	if msg.Err != "" {
		flags |= hasErr
		pos = putField(result, pos, []byte(msg.Err))
	}

	if msg.Meta != nil {
		flags |= hasMeta
		putField(result, pos, msg.Meta)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	pos := 2

	var field []byte
	var err error

	if flags&hasProcedure != 0 {
		if field, pos, err = readField(data, pos, "procedure"); err != nil {
			return err
		}
		msg.Procedure = string(field)
	}

	if flags&hasInput != 0 {
		if field, pos, err = readField(data, pos, "input"); err != nil {
			return err
		}
		msg.Input = field
	}

	if flags&hasOutput != 0 {
		if field, pos, err = readField(data, pos, "output"); err != nil {
			return err
		}
		msg.Output = field
	}

	if flags&hasErr != 0 {
		if field, pos, err = readField(data, pos, "error"); err != nil {
			return err
		}
		msg.Err = string(field)
	}

	if flags&hasMeta != 0 {
		if field, _, err = readField(data, pos, "meta"); err != nil {
			return err
		}
		msg.Meta = field
	}

	return nil
}

func (b binarySerializerImpl) Name() string {
	return "binary"
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// putField writes a length prefixed field at pos and returns the next position
func putField(dst []byte, pos int, field []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(field)))
	pos += 4
	copy(dst[pos:pos+len(field)], field)
	return pos + len(field)
}

// readField reads a length prefixed field at pos. The returned slice is a copy
// (never nil, empty if the length is 0) and does not alias data.
func readField(data []byte, pos int, name string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s length", name)
	}
	length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4

	if pos+length > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s data", name)
	}
	field := make([]byte, length)
	copy(field, data[pos:pos+length])
	return field, pos + length, nil
}

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Procedure != "" {
		size += 4 + len(msg.Procedure)
	}
	if msg.Input != nil {
		size += 4 + len(msg.Input)
	}
	if msg.Output != nil {
		size += 4 + len(msg.Output)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}
