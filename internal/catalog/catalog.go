// Package catalog lists the prebuilt voices, synthesis models and style presets a batch may select.
package catalog

type Gender string

const (
	Female Gender = "female"
	Male   Gender = "male"
)

type Voice struct {
	Name   string `json:"name"`
	Gender Gender `json:"gender"`
}

type Model struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// StylePreset is a short performance tag. An empty Tag injects nothing.
type StylePreset struct {
	Label string `json:"label"`
	Tag   string `json:"tag"`
}

var voices = []Voice{
	{Name: "Achernar", Gender: Female},
	{Name: "Aoede", Gender: Female},
	{Name: "Autonoe", Gender: Female},
	{Name: "Callirrhoe", Gender: Female},
	{Name: "Despina", Gender: Female},
	{Name: "Erinome", Gender: Female},
	{Name: "Gacrux", Gender: Female},
	{Name: "Kore", Gender: Female},
	{Name: "Laomedeia", Gender: Female},
	{Name: "Leda", Gender: Female},
	{Name: "Pulcherrima", Gender: Female},
	{Name: "Sulafat", Gender: Female},
	{Name: "Vindemiatrix", Gender: Female},
	{Name: "Zephyr", Gender: Female},
	{Name: "Achird", Gender: Male},
	{Name: "Algenib", Gender: Male},
	{Name: "Algieba", Gender: Male},
	{Name: "Alnilam", Gender: Male},
	{Name: "Charon", Gender: Male},
	{Name: "Enceladus", Gender: Male},
	{Name: "Fenrir", Gender: Male},
	{Name: "Iapetus", Gender: Male},
	{Name: "Orus", Gender: Male},
	{Name: "Puck", Gender: Male},
	{Name: "Rasalgethi", Gender: Male},
	{Name: "Sadachbia", Gender: Male},
	{Name: "Sadaltager", Gender: Male},
	{Name: "Schedar", Gender: Male},
	{Name: "Umbriel", Gender: Male},
}

var models = []Model{
	{ID: "gemini-2.5-flash-tts", Label: "Flash", Description: "Low latency, fast generation"},
	{ID: "gemini-2.5-flash-lite-preview-tts", Label: "Flash Lite", Description: "Lightweight preview model"},
	{ID: "gemini-2.5-pro-tts", Label: "Pro", Description: "High control, best for long-form"},
}

var presets = []StylePreset{
	{Label: "Neutral", Tag: ""},
	{Label: "Whispering", Tag: "[whispering]"},
	{Label: "Sarcastic", Tag: "[sarcasm]"},
	{Label: "Laughing", Tag: "[laughing]"},
	{Label: "Shouting", Tag: "[shouting]"},
	{Label: "Robotic", Tag: "[robotic]"},
	{Label: "Extremely Fast", Tag: "[extremely fast]"},
}

// Voices returns a copy of the full voice catalog.
func Voices() []Voice { return append([]Voice(nil), voices...) }

// Models returns a copy of the model catalog. The first entry is the default.
func Models() []Model { return append([]Model(nil), models...) }

// Presets returns a copy of the style presets. The first entry is the default.
func Presets() []StylePreset { return append([]StylePreset(nil), presets...) }

func VoicesByGender(g Gender) []Voice {
	var out []Voice
	for _, v := range voices {
		if v.Gender == g {
			out = append(out, v)
		}
	}
	return out
}

func LookupVoice(name string) (Voice, bool) {
	for _, v := range voices {
		if v.Name == name {
			return v, true
		}
	}
	return Voice{}, false
}

func LookupModel(id string) (Model, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// PresetByTag finds the preset carrying tag. Unknown tags are reported with ok=false.
func PresetByTag(tag string) (StylePreset, bool) {
	for _, p := range presets {
		if p.Tag == tag {
			return p, true
		}
	}
	return StylePreset{}, false
}

// DefaultModel is the model used when a request leaves the model empty.
func DefaultModel() Model { return models[0] }
