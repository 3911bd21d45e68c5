package serializer

import (
	"github.com/ValentinKolb/dLink/rpc/common"
	"testing"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTResult,
		},
		"QueryNoInput": {
			MsgType:   common.MsgTQuery,
			Procedure: "session.whoami",
		},
		"QuerySmallInput": {
			MsgType:   common.MsgTQuery,
			Procedure: "greeting.hello",
			Input:     []byte(`{"text":"world"}`),
		},
		"MutationLargeInput": {
			MsgType:   common.MsgTMutation,
			Procedure: "upload.put",
			Input:     make([]byte, 1024*16), // 16KB of data
		},
		"ResultMediumOutput": {
			MsgType:   common.MsgTResult,
			Procedure: "greeting.hello",
			Output:    make([]byte, 1024), // 1KB of data
		},
		"ErrorMessage": {
			MsgType:   common.MsgTError,
			Procedure: "post.create",
			Err:       "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
		},
	}
}

// BenchmarkSerialize measures serialization of every message with every serializer
func BenchmarkSerialize(b *testing.B) {
	for sName, factory := range testSerializers {
		s := factory()
		for mName, msg := range benchmarkMessages() {
			b.Run(sName+"/"+mName, func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := s.Serialize(msg); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize measures deserialization of every message with every serializer
func BenchmarkDeserialize(b *testing.B) {
	for sName, factory := range testSerializers {
		s := factory()
		for mName, msg := range benchmarkMessages() {
			data, err := s.Serialize(msg)
			if err != nil {
				b.Fatal(err)
			}
			b.Run(sName+"/"+mName, func(b *testing.B) {
				b.ReportAllocs()
				var out common.Message
				for i := 0; i < b.N; i++ {
					if err := s.Deserialize(data, &out); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
