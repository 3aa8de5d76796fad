package core

import "testing"

func TestRedactSensitiveMapPreservesTraceabilityMetadata(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"interaction_id": "int_1",
		"fid":            "file_1",
		"sig":            "deadbeef",
		"bot_token":      "Bot abc",
		"public_key":     "ab",
		"nested":         map[string]any{"image_proxy_secret": "s", "channel_id": "c1"},
		"events":         []any{map[string]any{"authorization": "Bearer x"}},
	})

	if redacted["interaction_id"] != "int_1" || redacted["fid"] != "file_1" {
		t.Fatalf("expected traceability keys to remain visible, got %#v", redacted)
	}
	for _, key := range []string{"sig", "bot_token", "public_key"} {
		if redacted[key] != RedactedValue {
			t.Fatalf("expected %s to be redacted, got %#v", key, redacted[key])
		}
	}
	nested, ok := redacted["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested redacted map")
	}
	if nested["image_proxy_secret"] != RedactedValue || nested["channel_id"] != "c1" {
		t.Fatalf("unexpected nested redaction %#v", nested)
	}
	events := redacted["events"].([]any)
	if events[0].(map[string]any)["authorization"] != RedactedValue {
		t.Fatalf("expected nested slice values to be redacted")
	}
}
