package chat

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SanitizeInput limpa o conteúdo vindo do navegador antes de ir ao modelo ou ao cache.
func SanitizeInput(s string, maxRunes int) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		case r == '<' || r == '>' || r == '`':
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	if maxRunes > 0 {
		if runes := []rune(s); len(runes) > maxRunes {
			s = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return s
}

// PrepareHistory descarta mensagens de sistema vindas do cliente, sanitiza,
// remove vazias e mantém só as últimas limit.
func PrepareHistory(msgs []Message, limit, maxRunes int) []Message {
	cleaned := lo.FilterMap(msgs, func(m Message, _ int) (Message, bool) {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != RoleUser && role != RoleAssistant {
			return Message{}, false
		}
		content := SanitizeInput(m.Content, maxRunes)
		if content == "" {
			return Message{}, false
		}
		return Message{Role: role, Content: content}, true
	})

	if limit > 0 && len(cleaned) > limit {
		cleaned = cleaned[len(cleaned)-limit:]
	}
	return cleaned
}

// WithSystemPrompt devolve a conversa completa enviada ao modelo.
func WithSystemPrompt(history []Message) []Message {
	out := make([]Message, 0, len(history)+1)
	out = append(out, Message{Role: RoleSystem, Content: SystemPrompt})
	return append(out, history...)
}

var (
	htmlTagRe     = regexp.MustCompile(`<[^>]*>`)
	codeFenceRe   = regexp.MustCompile("```[a-zA-Z0-9]*")
	headingRe     = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*`)
	emphasisRe    = regexp.MustCompile(`\*\*|__|~~|\*|` + "`")
	inlineSpaceRe = regexp.MustCompile(`[ \t]+`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

// CleanOutput remove marcação da resposta do modelo. Listas com "-" e quebras de linha ficam.
func CleanOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = htmlTagRe.ReplaceAllString(s, "")
	s = codeFenceRe.ReplaceAllString(s, "")
	s = headingRe.ReplaceAllString(s, "")
	s = emphasisRe.ReplaceAllString(s, "")
	s = inlineSpaceRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
