package llm

import (
	"context"
	"strings"
)

// Completer produces an assistant reply for a full conversation transcript.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Conversation carries the running transcript of a multi-turn prompt chain.
// Every conversation is seeded with the system prompt.
type Conversation struct {
	completer Completer
	messages  []Message
}

// NewConversation starts a conversation seeded with the given system prompt.
func NewConversation(completer Completer, systemPrompt string) *Conversation {
	return &Conversation{
		completer: completer,
		messages: []Message{
			{Role: RoleSystem, Content: systemPrompt},
		},
	}
}

// RunTurn appends the user message to the transcript, invokes the
// text-generation API with the full conversation so far, and returns the
// assistant's reply with code fences stripped. The reply is not appended to
// the transcript; callers decide whether the chain continues from it.
func (c *Conversation) RunTurn(ctx context.Context, userMessage string) (string, error) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: userMessage})

	reply, err := c.completer.Complete(ctx, c.messages)
	if err != nil {
		return "", err
	}

	return StripFences(reply), nil
}

// AppendAssistant extends the transcript with an assistant turn.
func (c *Conversation) AppendAssistant(content string) {
	c.messages = append(c.messages, Message{Role: RoleAssistant, Content: content})
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// StripFences removes markdown code-fence markers from generated text before
// it is persisted or forwarded.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```markdown", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
