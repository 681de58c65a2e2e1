package client

// Defaults applied by the backend when a session requests nothing specific.
const (
	DefaultLanguage = "en"
	DefaultModel    = "eleven_turbo_v2"
)

// defaultMultilingualModel backs non-English sessions whose requested model
// is not in the multilingual set.
const defaultMultilingualModel = "eleven_turbo_v2_5"

var englishTags = map[string]struct{}{
	"en":    {},
	"en-US": {},
	"en-GB": {},
}

var englishModels = map[string]struct{}{
	"eleven_turbo_v2": {},
	"eleven_flash_v2": {},
}

var multilingualModels = map[string]struct{}{
	"eleven_turbo_v2_5":      {},
	"eleven_flash_v2_5":      {},
	"eleven_multilingual_v2": {},
}

// NormalizeModel resolves the model a session will actually run, mirroring
// the backend's negotiation rules: English sessions must use an
// English-capable model, everything else a multilingual one. Requests
// outside the allowed set fall back to the family default rather than
// failing the handshake.
func NormalizeModel(language, model string) string {
	if language == "" {
		language = DefaultLanguage
	}
	if model == "" {
		model = DefaultModel
	}
	if _, english := englishTags[language]; english {
		if _, ok := englishModels[model]; ok {
			return model
		}
		return DefaultModel
	}
	if _, ok := multilingualModels[model]; ok {
		return model
	}
	return defaultMultilingualModel
}
