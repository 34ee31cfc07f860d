package protocol

// SynthesizeRequest asks the backend to turn text into a hosted audio URL.
// APIKey is a bearer credential: transmitted upstream, never logged or echoed.
type SynthesizeRequest struct {
	Text   string `json:"text"`
	APIKey string `json:"api_key"`
	Format string `json:"format"`
}

// SaveRequest asks the backend to persist the audio behind URL to a
// user-chosen location.
type SaveRequest struct {
	URL string `json:"url"`
}

// Result is the reply envelope for every operation. Errors are human-readable
// strings; the presentation layer shows them verbatim.
type Result struct {
	OK    bool   `json:"ok"`
	Value string `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// Operation names as registered at startup. The dispatch subject for an
// operation is OperationSubject(name).
const (
	OpSynthesizeSpeech = "synthesize_speech"
	OpSaveAudio        = "save_audio"

	subjectPrefix = "op."
)

func OperationSubject(name string) string {
	return subjectPrefix + name
}
