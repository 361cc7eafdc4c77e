package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"fenced no lang", "```\n[1,2]\n```", `[1,2]`, false},
		{"leading prose", "Here is the result:\n{\"ok\":true}", `{"ok":true}`, false},
		{"trailing prose", `{"ok":true} Hope that helps!`, `{"ok":true}`, false},
		{"empty", "", "", true},
		{"no json", "sorry, I cannot help", "", true},
		{"truncated", `{"a": [1, 2`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanJSON(json.RawMessage(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CleanJSON(%q) = %s, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CleanJSON(%q) error: %v", tt.input, err)
			}
			if string(got) != tt.want {
				t.Errorf("CleanJSON(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestChainFallsBackOnFailure(t *testing.T) {
	broken := &Stub{StubName: "primary", Err: errors.New("boom")}
	healthy := &Stub{StubName: "secondary", Default: json.RawMessage(`{"value":"ok"}`)}
	chain := NewChain(time.Second, broken, healthy)

	var out struct {
		Value string `json:"value"`
	}
	provider, err := chain.Complete(context.Background(), Request{Stage: "analysis", User: "x"}, &out)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if provider != "secondary" {
		t.Errorf("answered by %q, want secondary", provider)
	}
	if out.Value != "ok" {
		t.Errorf("decoded value %q, want ok", out.Value)
	}
	if len(broken.Calls()) != 1 {
		t.Errorf("primary called %d times, want 1", len(broken.Calls()))
	}
}

func TestChainTreatsSchemaInvalidAsFailure(t *testing.T) {
	// Valid JSON of the wrong shape must fall through, same as a transport error.
	wrongShape := &Stub{StubName: "primary", Default: json.RawMessage(`{"value":[1,2,3]}`)}
	healthy := &Stub{StubName: "secondary", Default: json.RawMessage(`{"value":"ok"}`)}
	chain := NewChain(time.Second, wrongShape, healthy)

	var out struct {
		Value string `json:"value"`
	}
	provider, err := chain.Complete(context.Background(), Request{Stage: "validation"}, &out)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if provider != "secondary" {
		t.Errorf("answered by %q, want secondary", provider)
	}
}

func TestChainExhausted(t *testing.T) {
	chain := NewChain(time.Second, &Stub{StubName: "a", Err: errors.New("down")}, &Stub{StubName: "b", Err: errors.New("also down")})

	var out map[string]any
	if _, err := chain.Complete(context.Background(), Request{Stage: "outline"}, &out); !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

func TestChainHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := NewChain(time.Second, &Stub{Default: json.RawMessage(`{}`)})
	var out map[string]any
	if _, err := chain.Complete(ctx, Request{Stage: "analysis"}, &out); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
