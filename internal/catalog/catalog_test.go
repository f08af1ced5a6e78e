package catalog

import "testing"

func TestVoicesSplitByGender(t *testing.T) {
	female := VoicesByGender(Female)
	male := VoicesByGender(Male)
	if len(female)+len(male) != len(Voices()) {
		t.Fatalf("gender split lost voices: %d + %d != %d", len(female), len(male), len(Voices()))
	}
	if len(female) != 14 {
		t.Fatalf("expected 14 female voices, got %d", len(female))
	}
}

func TestLookups(t *testing.T) {
	if v, ok := LookupVoice("Kore"); !ok || v.Gender != Female {
		t.Fatalf("expected Kore to be a female voice, got %+v ok=%v", v, ok)
	}
	if _, ok := LookupVoice("kore"); ok {
		t.Fatal("voice lookup must be case sensitive")
	}
	if m, ok := LookupModel("gemini-2.5-pro-tts"); !ok || m.Label != "Pro" {
		t.Fatalf("unexpected model lookup: %+v ok=%v", m, ok)
	}
	if DefaultModel().ID != "gemini-2.5-flash-tts" {
		t.Fatalf("unexpected default model %s", DefaultModel().ID)
	}
	if p, ok := PresetByTag("[sarcasm]"); !ok || p.Label != "Sarcastic" {
		t.Fatalf("unexpected preset lookup: %+v ok=%v", p, ok)
	}
	if p, ok := PresetByTag(""); !ok || p.Label != "Neutral" {
		t.Fatalf("empty tag should map to Neutral, got %+v", p)
	}
}

func TestCatalogCopiesAreIndependent(t *testing.T) {
	v := Voices()
	v[0].Name = "mutated"
	if Voices()[0].Name == "mutated" {
		t.Fatal("Voices must return a copy")
	}
}
