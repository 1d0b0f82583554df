package stt

// Request describes one recorded utterance to transcribe.
type Request struct {
	// Audio is the encoded recording (webm, ogg, wav, mp3...). Required.
	Audio []byte

	// Filename is forwarded as the upload name; backends sniff the container
	// format from its extension. Defaults to "audio.webm".
	Filename string

	// Prompt biases recognition toward expected vocabulary, e.g. the verse
	// the learner is reciting from. Optional.
	Prompt string

	// Language is an ISO-639-1 code ("ar"). Empty uses the provider default.
	Language string
}

// DefaultFilename is used when Request.Filename is empty.
const DefaultFilename = "audio.webm"

// FilenameOrDefault returns r.Filename, or DefaultFilename when it is empty.
func (r Request) FilenameOrDefault() string {
	if r.Filename == "" {
		return DefaultFilename
	}
	return r.Filename
}
