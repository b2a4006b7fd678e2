package elevenlabs

import (
	"encoding/json"
	"testing"

	"github.com/voxprep/voxprep/pkg/provider/tts"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q, want %q", p.model, defaultModel)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("outputFormat = %q, want %q", p.outputFormat, defaultOutputFmt)
	}
}

func TestNew_Options(t *testing.T) {
	p, err := New("key", WithModel("eleven_turbo_v2"), WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_turbo_v2" {
		t.Errorf("model = %q", p.model)
	}
	if p.outputFormat != "pcm_24000" {
		t.Errorf("outputFormat = %q", p.outputFormat)
	}
}

func TestSettingsForVoice(t *testing.T) {
	vs := settingsForVoice(tts.VoiceProfile{ID: "v1"})
	if vs.Stability != coachStability || vs.SimilarityBoost != coachSimilarityBoost {
		t.Errorf("default settings = %+v", vs)
	}
	if vs.Speed != 0 {
		t.Errorf("default speed should be omitted, got %f", vs.Speed)
	}

	vs = settingsForVoice(tts.VoiceProfile{ID: "v1", SpeedFactor: 0.9})
	if vs.Speed != 0.9 {
		t.Errorf("speed = %f, want 0.9", vs.Speed)
	}
}

func TestTextMessageJSON(t *testing.T) {
	msg, err := json.Marshal(textMessage{Text: "Tell me about yourself.", VoiceSettings: settingsForVoice(tts.VoiceProfile{ID: "v"})})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(msg, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["text"] != "Tell me about yourself." {
		t.Errorf("text = %v", decoded["text"])
	}
	if _, ok := decoded["voice_settings"]; !ok {
		t.Error("voice_settings missing from first fragment payload")
	}

	// Subsequent fragments omit voice settings entirely.
	msg, _ = json.Marshal(textMessage{Text: "next"})
	decoded = nil
	_ = json.Unmarshal(msg, &decoded)
	if _, ok := decoded["voice_settings"]; ok {
		t.Error("voice_settings should be omitted when nil")
	}
}

func TestParseVoicesResponse(t *testing.T) {
	raw := []byte(`{
		"voices": [
			{"voice_id": "abc", "name": "Clara", "category": "premade", "labels": {"accent": "british", "gender": "female"}},
			{"voice_id": "def", "name": "Sam", "labels": {}}
		]
	}`)

	profiles, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("got %d profiles, want 2", len(profiles))
	}

	clara := profiles[0]
	if clara.ID != "abc" || clara.Name != "Clara" || clara.Provider != "elevenlabs" {
		t.Errorf("profile = %+v", clara)
	}
	if clara.Metadata["accent"] != "british" || clara.Metadata["category"] != "premade" {
		t.Errorf("metadata = %v", clara.Metadata)
	}
	if _, ok := profiles[1].Metadata["category"]; ok {
		t.Error("empty category should not be recorded")
	}
}

func TestParseVoicesResponse_InvalidJSON(t *testing.T) {
	if _, err := parseVoicesResponse([]byte(`{broken`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
