package transcriber

const openAIAPIURL = "https://api.openai.com/v1/audio/transcriptions"

func NewOpenAI(opts Options) *Whisper {
	w := newWhisper("openai", opts, openAIAPIURL, func(ModelSize) string {
		return "whisper-1"
	})
	w.warmURL = "https://api.openai.com"
	return w
}
