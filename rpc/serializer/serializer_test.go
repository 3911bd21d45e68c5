package serializer

import (
	"bytes"
	"github.com/ValentinKolb/dLink/rpc/common"
	"reflect"
	"testing"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTResult},

		// Query request
		{
			MsgType:   common.MsgTQuery,
			Procedure: "greeting.hello",
			Input:     []byte(`{"text":"world"}`),
		},

		// Mutation request
		{
			MsgType:   common.MsgTMutation,
			Procedure: "post.create",
			Input:     []byte(`{"title":"first"}`),
		},

		// Result response
		{
			MsgType:   common.MsgTResult,
			Procedure: "greeting.hello",
			Output:    []byte(`{"greeting":"Hello world"}`),
		},

		// Error response
		{
			MsgType:   common.MsgTError,
			Procedure: "post.create",
			Err:       "test error message",
		},

		// Message with all fields filled
		{
			MsgType:   common.MsgTResult,
			Procedure: "session.whoami",
			Input:     []byte("in"),
			Output:    []byte("out"),
			Err:       "partial",
			Meta:      []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestDeserializeResetsTarget tests that fields of a reused target message do not leak
func TestDeserializeResetsTarget(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(*common.NewResultResponse("echo", []byte("x"), nil))
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			reused := common.Message{Err: "stale", Input: []byte("stale"), Meta: []byte("stale")}
			if err := serializer.Deserialize(data, &reused); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if reused.Err != "" || reused.Input != nil || reused.Meta != nil {
				t.Errorf("stale fields survived deserialization: %+v", reused)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTQuery; msgType <= common.MsgTError; msgType++ {
				msg := common.Message{MsgType: msgType, Procedure: "p"}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				if err = serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestByName tests the serializer factory
func TestByName(t *testing.T) {
	for _, name := range Names {
		s, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q) failed: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("ByName(%q) returned serializer %q", name, s.Name())
		}
	}

	if _, err := ByName("superjson"); err == nil {
		t.Error("expected an error for an unknown serializer")
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty input slice but not nil",
			msg: common.Message{
				MsgType:   common.MsgTQuery,
				Procedure: "noop",
				Input:     []byte{},
			},
		},
		{
			name: "Empty output and meta slices but not nil",
			msg: common.Message{
				MsgType: common.MsgTResult,
				Output:  []byte{},
				Meta:    []byte{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err = serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if tc.msg.MsgType != result.MsgType || tc.msg.Procedure != result.Procedure || tc.msg.Err != result.Err {
				t.Errorf("scalar mismatch: expected %+v, got %+v", tc.msg, result)
			}

			// nil and empty must survive as they are
			for _, pair := range [][2][]byte{
				{tc.msg.Input, result.Input},
				{tc.msg.Output, result.Output},
				{tc.msg.Meta, result.Meta},
			} {
				if (pair[0] == nil) != (pair[1] == nil) {
					t.Errorf("nil/non-nil mismatch: expected %v, got %v", pair[0], pair[1])
				} else if !bytes.Equal(pair[0], pair[1]) {
					t.Errorf("content mismatch: expected %v, got %v", pair[0], pair[1])
				}
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for procedure",
			data:        []byte{1, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for input",
			data:        []byte{1, 2, 0, 0, 0, 10}, // Claims length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Missing length for output",
			data:        []byte{3, 4, 0, 0},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
