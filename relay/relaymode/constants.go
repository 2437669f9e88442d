package relaymode

// Mode identifies which client-facing endpoint shape a request arrived
// through, independent of which provider ultimately serves it.
const (
	Unknown = iota
	ChatCompletions
	Completions
	Embeddings
	Moderations
	ImagesGenerations
	ImagesEdits
	Edits
	AudioSpeech
	AudioTranscription
	AudioTranslation
	Rerank
	ResponseAPI
	ClaudeMessages
	Realtime
	Proxy
)
