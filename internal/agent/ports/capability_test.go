package ports

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCallTextPrefersInput(t *testing.T) {
	call := Call{Input: "name A", Arguments: map[string]any{"text": "ignored"}}
	if call.Text() != "name A" {
		t.Fatalf("expected input to win, got %q", call.Text())
	}
	call = Call{Arguments: map[string]any{"input": "from args"}}
	if call.Text() != "from args" {
		t.Fatalf("expected argument fallback, got %q", call.Text())
	}
	if (Call{}).Text() != "" {
		t.Fatal("expected empty text for empty call")
	}
}

func TestResultErrorRoundTrip(t *testing.T) {
	data, err := json.Marshal(Result{CallID: "c1", Content: "Error 500: boom", Error: errors.New("boom")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Error() != "boom" {
		t.Fatalf("expected error message to survive, got %v", decoded.Error)
	}
}

func TestResultUnmarshalErrorObject(t *testing.T) {
	var decoded Result
	if err := json.Unmarshal([]byte(`{"call_id":"c","content":"x","error":{"message":"bad"}}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Error() != "bad" {
		t.Fatalf("expected object error message, got %v", decoded.Error)
	}
}
