package core

import "strings"

// VoiceName is a prebuilt voice understood by the generation backend.
type VoiceName string

const (
	VoiceZephyr VoiceName = "Zephyr"
	VoicePuck   VoiceName = "Puck"
	VoiceCharon VoiceName = "Charon"
	VoiceKore   VoiceName = "Kore"
	VoiceFenrir VoiceName = "Fenrir"
)

// Gender is the coarse classification returned by voice analysis.
type Gender string

const (
	GenderMale    Gender = "Male"
	GenderFemale  Gender = "Female"
	GenderNeutral Gender = "Neutral"
)

// ParseGender maps free text onto a Gender, falling back to GenderNeutral.
func ParseGender(raw string) Gender {
	switch {
	case strings.EqualFold(raw, string(GenderMale)):
		return GenderMale
	case strings.EqualFold(raw, string(GenderFemale)):
		return GenderFemale
	default:
		return GenderNeutral
	}
}

// VoicePreset is a selectable prebuilt voice.
type VoicePreset struct {
	ID          string
	Name        string
	Description string
	Gender      Gender
	Voice       VoiceName
}

// Presets lists the built-in voices in display order.
var Presets = []VoicePreset{
	{ID: "v1", Name: "Zephyr", Description: "Calm and steady, great for narrations.", Gender: GenderNeutral, Voice: VoiceZephyr},
	{ID: "v2", Name: "Puck", Description: "Energetic and bright, perfect for social media.", Gender: GenderNeutral, Voice: VoicePuck},
	{ID: "v3", Name: "Charon", Description: "Deep and authoritative voice.", Gender: GenderMale, Voice: VoiceCharon},
	{ID: "v4", Name: "Kore", Description: "Soft, pleasant and friendly.", Gender: GenderFemale, Voice: VoiceKore},
	{ID: "v5", Name: "Fenrir", Description: "Strong, bold and clear.", Gender: GenderMale, Voice: VoiceFenrir},
}

// DefaultPreset is used when no voice is selected.
func DefaultPreset() VoicePreset {
	return Presets[0]
}

// PresetByName finds a preset by name or id, case-insensitively.
func PresetByName(name string) (VoicePreset, bool) {
	for _, preset := range Presets {
		if strings.EqualFold(preset.Name, name) || preset.ID == name {
			return preset, true
		}
	}

	return VoicePreset{}, false
}

// BaseVoiceFor picks the prebuilt voice closest to a reference voice's gender.
func BaseVoiceFor(gender Gender) VoiceName {
	switch gender {
	case GenderMale:
		return VoiceFenrir
	case GenderFemale:
		return VoiceKore
	default:
		return VoiceZephyr
	}
}
