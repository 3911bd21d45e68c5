package serve

import (
	"context"
	"encoding/json"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/serializer"
	"github.com/ValentinKolb/dLink/rpc/server"
	"github.com/ValentinKolb/dLink/rpc/session"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"testing"
)

func newServer(t *testing.T) (*server.Server, serializer.IRPCSerializer) {
	t.Helper()
	codec := serializer.NewJSONSerializer()
	s, err := server.NewRPCServerWith(common.ServerConfig{SessionSecret: "secret"}, codec)
	if err != nil {
		t.Fatalf("NewRPCServerWith failed: %v", err)
	}
	if err := RegisterProcedures(s); err != nil {
		t.Fatalf("RegisterProcedures failed: %v", err)
	}
	return s, codec
}

func query(t *testing.T, s *server.Server, codec serializer.IRPCSerializer, ctx context.Context, procedure string, input []byte) common.Message {
	t.Helper()
	req, err := codec.Serialize(*common.NewQueryRequest(procedure, input))
	if err != nil {
		t.Fatal(err)
	}
	var resp common.Message
	if err := codec.Deserialize(s.Handle(ctx, req), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	return resp
}

func TestProcedures(t *testing.T) {
	s, codec := newServer(t)

	if resp := query(t, s, codec, context.Background(), "echo", []byte("ping")); string(resp.Output) != "ping" {
		t.Errorf("echo: unexpected response %+v", resp)
	}

	tests := []struct {
		input, want string
	}{
		{`{"name":"Ada"}`, `{"greeting":"Hello, Ada!"}`},
		{``, `{"greeting":"Hello, world!"}`},
		{`{"name":"  "}`, `{"greeting":"Hello, world!"}`},
	}
	for _, tt := range tests {
		if resp := query(t, s, codec, context.Background(), "greeting.hello", []byte(tt.input)); string(resp.Output) != tt.want {
			t.Errorf("greeting.hello(%q) = %q (err %q), want %q", tt.input, resp.Output, resp.Err, tt.want)
		}
	}
	if resp := query(t, s, codec, context.Background(), "greeting.hello", []byte("{")); resp.Err == "" {
		t.Error("greeting.hello: expected error for invalid json")
	}

	// registering twice fails
	if err := RegisterProcedures(s); err == nil {
		t.Error("Expected error registering procedures twice")
	}
}

func TestWhoami(t *testing.T) {
	s, codec := newServer(t)

	token, _, err := s.Sessions().Issue("user-1", "Ada", "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}

	ctx := transport.WithHeaders(context.Background(), map[string]string{"cookie": session.CookieName + "=" + token})
	resp := query(t, s, codec, ctx, "session.whoami", nil)
	var sess session.Session
	if err := json.Unmarshal(resp.Output, &sess); err != nil {
		t.Fatalf("invalid output %q (err %q): %v", resp.Output, resp.Err, err)
	}
	if sess.UserID != "user-1" || sess.Email != "ada@example.com" {
		t.Errorf("unexpected session %+v", sess)
	}

	if resp := query(t, s, codec, context.Background(), "session.whoami", nil); resp.Err != session.ErrNoSession.Error() {
		t.Errorf("expected %q, got %+v", session.ErrNoSession, resp)
	}
}

func TestProcessConfig(t *testing.T) {
	defer viper.Reset()

	cmd := &cobra.Command{}
	viper.Set("http-endpoint", "127.0.0.1:0")
	viper.Set("socket-endpoint", "")
	viper.Set("timeout", 5)
	viper.Set("buffer-size", 64)
	viper.Set("session-secret", "secret")
	viper.Set("allowed-origins", []string{"https://app.example.com"})
	if err := processConfig(cmd, nil); err != nil {
		t.Fatalf("processConfig failed: %v", err)
	}
	if serveCmdConfig.BufferSize != 64*1024 || serveCmdConfig.SessionSecret != "secret" {
		t.Errorf("unexpected config %s", serveCmdConfig)
	}
	if len(serveCmdConfig.AllowedOrigins) != 1 || serveCmdConfig.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("unexpected allowed origins %v", serveCmdConfig.AllowedOrigins)
	}

	viper.Set("http-endpoint", "")
	if err := processConfig(cmd, nil); err == nil {
		t.Error("Expected error without endpoints")
	}

	viper.Set("http-endpoint", ":3000")
	viper.Set("timeout", 0)
	if err := processConfig(cmd, nil); err == nil {
		t.Error("Expected error for timeout 0")
	}
}
