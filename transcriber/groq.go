package transcriber

const groqAPIURL = "https://api.groq.com/openai/v1/audio/transcriptions"

// NewGroq maps every size below large to the turbo model; groq only hosts
// the large-v3 family.
func NewGroq(opts Options) *Whisper {
	w := newWhisper("groq", opts, groqAPIURL, func(s ModelSize) string {
		if s == ModelLarge {
			return "whisper-large-v3"
		}
		return "whisper-large-v3-turbo"
	})
	w.warmURL = "https://api.groq.com"
	return w
}
