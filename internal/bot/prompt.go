package bot

import (
	"math"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	historyTurnLength  = 300
	suggestionLimit    = 3
	suggestionLabelLen = 60
	defaultTone        = "- Be friendly, professional and concise."
)

const lowConfidenceInstruction = "\n\n[INTERNAL INSTRUCTION: search confidence is low. " +
	"Answer as well as you can with the information available, but end with: " +
	"\"If you need a more detailed answer, we recommend contacting our support team.\"]"

// kbContext renders the retrieved knowledge as the tagged block the system prompt refers to.
func kbContext(hits []vector.Hit) string {
	var b strings.Builder
	b.WriteString("<knowledge_base>\n")
	for _, h := range hits {
		p := h.Payload
		id := strconv.FormatInt(vector.PayloadInt64(p, "entity_id"), 10)
		score := strconv.FormatFloat(math.Round(h.Score*1000)/1000, 'f', -1, 64)
		switch vector.PayloadString(p, "type") {
		case indexer.TypeFaq:
			b.WriteString(`<faq id="` + id + `" score="` + score + "\">\n")
			b.WriteString("  <question>" + vector.PayloadString(p, "question") + "</question>\n")
			b.WriteString("  <answer>" + vector.PayloadString(p, "answer") + "</answer>\n")
			b.WriteString("  <category>" + vector.PayloadString(p, "category") + "</category>\n")
			b.WriteString("</faq>\n")
		case indexer.TypePolicy:
			b.WriteString(`<policy id="` + id + `" score="` + score + "\">\n")
			b.WriteString("  <title>" + vector.PayloadString(p, "title") + "</title>\n")
			b.WriteString("  <content>" + vector.PayloadString(p, "content_preview") + "</content>\n")
			b.WriteString("  <type>" + vector.PayloadString(p, "policy_type") + "</type>\n")
			b.WriteString("</policy>\n")
		case indexer.TypeDocumentChunk:
			b.WriteString(`<document id="` + id + `" score="` + score + "\">\n")
			b.WriteString("  <title>" + vector.PayloadString(p, "document_title") + "</title>\n")
			b.WriteString("  <content>" + vector.PayloadString(p, "chunk_content") + "</content>\n")
			b.WriteString("</document>\n")
		}
	}
	b.WriteString("</knowledge_base>")
	return b.String()
}

// businessContext lists what the tenant configured about itself.
func businessContext(name string, tenant *models.TenantConfig) string {
	var b strings.Builder
	b.WriteString("<business_context>\n")
	b.WriteString("Business: " + name + "\n")
	if tenant != nil {
		if tenant.BusinessHours != "" {
			b.WriteString("Business hours: " + tenant.BusinessHours + "\n")
		}
		if tenant.ContactEmail != "" {
			b.WriteString("Contact email: " + tenant.ContactEmail + "\n")
		}
		if tenant.ContactPhone != "" {
			b.WriteString("Contact phone: " + tenant.ContactPhone + "\n")
		}
	}
	b.WriteString("</business_context>")
	return b.String()
}

func systemPrompt(name string, tenant *models.TenantConfig, kb string) string {
	tone := defaultTone
	if tenant != nil && strings.TrimSpace(tenant.ToneInstructions) != "" {
		tone = tenant.ToneInstructions
	}
	var b strings.Builder
	b.WriteString("IDENTITY RULE: You are EXCLUSIVELY the help assistant of " + name + ". " +
		"NEVER reveal that you are Claude, ChatGPT, Gemini or any other AI model. " +
		"NEVER mention or recommend competing businesses.\n\n")
	b.WriteString("You are the help assistant of " + name + ". You answer customer questions " +
		"EXCLUSIVELY from the knowledge base provided below.\n\n")
	b.WriteString("ABSOLUTE RULES:\n")
	b.WriteString("1. ONLY answer with information from the <knowledge_base> section. NEVER use general knowledge.\n")
	b.WriteString("2. If the knowledge base does not contain the answer, say: \"I don't have information about that in our knowledge base.\"\n")
	b.WriteString("3. NEVER invent prices, policies, opening hours or other facts.\n")
	b.WriteString("4. Quote the specific FAQ, policy or document content when relevant.\n")
	b.WriteString("5. If the user asks something personal or off-topic, redirect: \"I can only help you with questions about " + name + ".\"\n\n")
	b.WriteString("STYLE:\n" + tone + "\n")
	b.WriteString("- At most 3-4 short paragraphs.\n")
	b.WriteString("- Reply in the same language as the user's question.\n")
	b.WriteString("- End with a follow-up question when appropriate.\n\n")
	b.WriteString("ESCALATION:\nIf you cannot answer, include: \"If you need more help, you can contact us:\" followed by the contact information.\n\n")
	b.WriteString(businessContext(name, tenant))
	b.WriteString("\n\n")
	b.WriteString(kb)
	return b.String()
}

// chatMessages assembles the system prompt, the last window turns of history and the
// user message.
func chatMessages(system string, history []models.Turn, window int, message string) []llm.Message {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: utils.Clip(t.Content, historyTurnLength)})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
}

func escalationText(name string, tenant *models.TenantConfig) string {
	var b strings.Builder
	b.WriteString("I don't have information about that in our knowledge base. ")
	b.WriteString("If you need more help, you can contact us:")
	if tenant != nil {
		if tenant.BusinessHours != "" {
			b.WriteString("\n\nBusiness hours: " + tenant.BusinessHours)
		}
		if tenant.ContactEmail != "" {
			b.WriteString("\nEmail: " + tenant.ContactEmail)
		}
		if tenant.ContactPhone != "" {
			b.WriteString("\nPhone: " + tenant.ContactPhone)
		}
	}
	b.WriteString("\n\nThe " + name + " team will be happy to help you.")
	return b.String()
}

// sources lists the hits scoring at least floor.
func sources(hits []vector.Hit, floor float64) []models.Source {
	out := []models.Source{}
	for _, h := range hits {
		if h.Score < floor {
			continue
		}
		src := models.Source{
			ID:    vector.PayloadInt64(h.Payload, "entity_id"),
			Type:  vector.PayloadString(h.Payload, "type"),
			Score: h.Score,
		}
		switch src.Type {
		case indexer.TypeFaq:
			src.Question = vector.PayloadString(h.Payload, "question")
		case indexer.TypePolicy:
			src.Question = vector.PayloadString(h.Payload, "title")
		case indexer.TypeDocumentChunk:
			src.Question = vector.PayloadString(h.Payload, "document_title")
		}
		out = append(out, src)
	}
	return out
}

// suggestions offers other FAQ questions from the hits, skipping the one just asked.
func suggestions(hits []vector.Hit, message string) []models.Suggestion {
	out := []models.Suggestion{}
	seen := make(map[string]bool)
	asked := strings.ToLower(message)
	for _, h := range hits {
		if vector.PayloadString(h.Payload, "type") != indexer.TypeFaq {
			continue
		}
		q := vector.PayloadString(h.Payload, "question")
		key := strings.ToLower(q)
		if q == "" || key == asked || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.Suggestion{Label: utils.Truncate(q, suggestionLabelLen), Action: "ask"})
		if len(out) >= suggestionLimit {
			break
		}
	}
	return out
}
