package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/server"
	"github.com/ValentinKolb/dLink/rpc/session"
	"strings"
)

// helloInput is the input of greeting.hello
type helloInput struct {
	Name string `json:"name"`
}

// helloOutput is the output of greeting.hello
type helloOutput struct {
	Greeting string `json:"greeting"`
}

// RegisterProcedures registers the procedures served by dlink serve:
//
//   - echo (query): returns its input
//   - greeting.hello (query): {"name": "..."} => {"greeting": "Hello, ...!"}
//   - session.whoami (query): the session of the caller as json
func RegisterProcedures(s *server.Server) error {
	if err := s.Query("echo", echo); err != nil {
		return err
	}
	if err := s.Query("greeting.hello", hello); err != nil {
		return err
	}
	return s.Query("session.whoami", whoami)
}

func echo(_ context.Context, input []byte) ([]byte, error) {
	return input, nil
}

func hello(_ context.Context, input []byte) ([]byte, error) {
	var in helloInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "world"
	}
	return json.Marshal(helloOutput{Greeting: fmt.Sprintf("Hello, %s!", name)})
}

func whoami(ctx context.Context, _ []byte) ([]byte, error) {
	s, ok := session.FromContext(ctx)
	if !ok {
		return nil, session.ErrNoSession
	}
	return json.Marshal(s)
}
