package analysis

import (
	"strings"

	"call-automation/internal/calls"
)

const systemPrompt = "You analyze recorded sales phone calls. Always answer with valid JSON only, " +
	"without any extra text or formatting. Write every text field in the language of the conversation."

const dispositionCriteria = `Decide the disposition carefully using these criteria.

"interested": the customer showed deliberate interest. Use it ONLY if at least one holds:
- the customer discusses the product, the service or their own task
- the customer answers questions about their business or needs
- the customer asks clarifying questions
- the customer agreed to receive information about the product
- the customer agreed to a meeting, a call back or further contact
- the customer explicitly confirmed it could be useful to them
Answers that only acknowledge the start of the conversation ("yes", "go ahead", "I'm listening") are NOT interest.

"rejected": no interest was shown. Use it when the conversation ended or broke off and the customer
did not engage with the product, did not discuss their task, did not agree to receive information and
made no arrangement to continue. This includes conversations that stopped at the greeting and
formal answers without engagement.

"continue_in_chat": both sides agreed to continue in a chat or messenger (Telegram, WhatsApp and similar).

"busy": the customer says they are busy right now, asks to be called later or at a specific time.

"wrong_number": the customer says the caller reached the wrong person, number or company.

"no_answer": there is no dialogue at all: no transcript, only ringing, silence or an answering machine.`

// buildPrompt renders the user message for one transcript. The funnel
// section and the funnel_achieved field appear only when a goal is set.
func buildPrompt(in calls.AnalysisInput) string {
	goal := strings.TrimSpace(in.FunnelGoal)

	var b strings.Builder
	b.WriteString("You are analyzing a sales phone call. Using the transcript and the original prompt, provide a detailed analysis.\n\n")
	b.WriteString("ORIGINAL PROMPT:\n")
	b.WriteString(in.Prompt)
	b.WriteString("\n\n")
	if goal != "" {
		b.WriteString("CALL GOAL (FUNNEL):\n")
		b.WriteString(goal)
		b.WriteString("\n\n")
	}
	b.WriteString("TRANSCRIPT:\n")
	b.WriteString(in.Transcript)
	b.WriteString("\n\n")
	b.WriteString(dispositionCriteria)
	b.WriteString("\n\nReturn a JSON object with these fields:\n")
	b.WriteString(`1. "disposition": one of interested, rejected, continue_in_chat, busy, wrong_number, no_answer` + "\n")
	b.WriteString(`2. "summary": a short summary of the call` + "\n")
	b.WriteString(`3. "followup_message": the follow-up message to send the customer` + "\n")
	b.WriteString(`4. "customer_interest": the customer's level of interest in a few words` + "\n")
	b.WriteString(`5. "crm_status": one of added, pending, not_created` + "\n")
	if goal != "" {
		b.WriteString(`6. "funnel_achieved": true or false, whether the call goal above was reached during this call` + "\n")
	}
	b.WriteString("\nReturn ONLY valid JSON, no additional text.")
	return b.String()
}
