package tts

// VoiceProfile selects the voice a phrase is spoken in.
type VoiceProfile struct {
	// ID is the provider's voice identifier. Empty selects the provider
	// default.
	ID string

	Name     string
	Provider string

	// Language is an ISO 639-1 code the provider should pronounce the text
	// in, e.g. "ar". Empty lets the model detect it. Not every model accepts
	// an explicit language.
	Language string

	// Metadata carries provider labels such as gender or accent.
	Metadata map[string]string
}
