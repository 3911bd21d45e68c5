package util

import (
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"reflect"
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line exceeds %d characters: %q", Wrap, line)
		}
	}
	if WrapString("") != "" {
		t.Error("expected empty string")
	}
}

func TestParseHeaders(t *testing.T) {
	got, err := ParseHeaders([]string{"Authorization=Bearer X", "cookie = a=b"})
	if err != nil {
		t.Fatalf("ParseHeaders failed: %v", err)
	}
	want := map[string]string{"authorization": "Bearer X", "cookie": "a=b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	for _, invalid := range []string{"novalue", "=value"} {
		if _, err := ParseHeaders([]string{invalid}); err == nil {
			t.Errorf("expected error for %q", invalid)
		}
	}
}

func TestGetExecutionContext(t *testing.T) {
	defer viper.Reset()

	viper.Set("context", "server")
	viper.Set("header", []string{"authorization=Bearer X"})
	ctx, err := GetExecutionContext()
	if err != nil {
		t.Fatalf("GetExecutionContext failed: %v", err)
	}
	if ctx.Kind() != common.ExecServer || ctx.Headers()["authorization"] != "Bearer X" {
		t.Errorf("unexpected context %s with headers %v", ctx, ctx.Headers())
	}

	viper.Set("context", "browser")
	if ctx, err := GetExecutionContext(); err != nil || ctx.Kind() != common.ExecBrowser {
		t.Errorf("expected browser context, got %s (%v)", ctx, err)
	}

	viper.Set("context", "desktop")
	if _, err := GetExecutionContext(); err == nil {
		t.Error("expected error for unknown context")
	}
}

func TestHeaderFlagKeepsCommas(t *testing.T) {
	defer viper.Reset()

	cmd := &cobra.Command{Use: "test"}
	SetupRPCClientFlags(cmd)
	err := cmd.ParseFlags([]string{
		"--header", "accept=text/html, application/json",
		"--header", "cookie=a=1,b=2",
	})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if err := BindCommandFlags(cmd); err != nil {
		t.Fatalf("BindCommandFlags failed: %v", err)
	}

	ctx, err := GetExecutionContext()
	if err != nil {
		t.Fatalf("GetExecutionContext failed: %v", err)
	}
	want := map[string]string{"accept": "text/html, application/json", "cookie": "a=1,b=2"}
	if !reflect.DeepEqual(ctx.Headers(), want) {
		t.Errorf("expected headers %v, got %v", want, ctx.Headers())
	}
}

func TestGetTransportConfig(t *testing.T) {
	defer viper.Reset()

	viper.Set("serializer", "binary")
	viper.Set("context", "server")
	viper.Set("public-host", "my-app.example.com")
	viper.Set("ws-url", "ws://example.com:3001")

	cfg, err := GetTransportConfig()
	if err != nil {
		t.Fatalf("GetTransportConfig failed: %v", err)
	}
	if cfg.BaseURL != "http://my-app.example.com" {
		t.Errorf("unexpected base url %s", cfg.BaseURL)
	}
	if cfg.WSURL != "ws://example.com:3001" || cfg.Codec.Name() != "binary" {
		t.Errorf("unexpected config %+v", cfg)
	}

	// an explicit base url wins
	viper.Set("base-url", "http://localhost:4000")
	if cfg, _ := GetTransportConfig(); cfg.BaseURL != "http://localhost:4000" {
		t.Errorf("expected explicit base url, got %s", cfg.BaseURL)
	}

	viper.Set("serializer", "xml")
	if _, err := GetTransportConfig(); err == nil {
		t.Error("expected error for unknown serializer")
	}
}
