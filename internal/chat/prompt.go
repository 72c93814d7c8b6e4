package chat

// System-turn preamble. Synthesized at send time, never stored.
const systemPreamble = "You are the friendly virtual assistant of Lumi Salon. " +
	"Answer guests' questions about treatments, pricing and bookings in a warm, concise tone. " +
	"If you are not sure about a detail, say so and suggest contacting the salon directly. " +
	"Never invent prices or services."

const systemContextHeader = "\n\nRelevant services from the salon catalog:\n\n"

const systemNoContext = "\n\nNo catalog entries matched this question; answer from the conversation " +
	"so far and invite the guest to ask about a specific treatment."

// FallbackReply is what the guest sees when every completion attempt
// failed. A raw error is never surfaced as assistant content.
const FallbackReply = "I'm sorry, I'm having trouble answering right now. " +
	"Could you please try again in a moment?"

func systemTurn(contextBlock string) string {
	if contextBlock == "" {
		return systemPreamble + systemNoContext
	}
	return systemPreamble + systemContextHeader + contextBlock
}
