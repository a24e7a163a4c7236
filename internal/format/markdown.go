package format

import (
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

// UTF16Len returns the length of s in UTF-16 code units, the unit
// Telegram uses for entity offsets.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

var (
	headerRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*$`)
	// Groups: 1 bold, 2 code, 3 italic.
	spanRe = regexp.MustCompile("\\*\\*(.+?)\\*\\*|`([^`]+)`|_([^_\\s](?:[^_]*[^_\\s])?)_")
)

// ParseMarkdown converts a small Markdown subset into Telegram entities:
// **bold**, `code`, _italic_ and "# Header" lines (rendered bold).
// Spans do not nest.
func ParseMarkdown(text string) ParseResult {
	text = headerRe.ReplaceAllString(text, "**$1**")

	var b Builder
	rest := text
	for {
		loc := spanRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			b.Text(rest)
			break
		}
		b.Text(rest[:loc[0]])
		switch {
		case loc[2] >= 0:
			b.Bold(rest[loc[2]:loc[3]])
		case loc[4] >= 0:
			b.Code(rest[loc[4]:loc[5]])
		default:
			b.Italic(rest[loc[6]:loc[7]])
		}
		rest = rest[loc[1]:]
	}
	return b.Result()
}

// Builder assembles a message from literal pieces. Text added through it
// is never interpreted as markup, so it is safe for user-supplied titles.
type Builder struct {
	sb       strings.Builder
	offset   int
	entities []tgbotapi.MessageEntity
}

func (b *Builder) Text(s string) *Builder {
	b.sb.WriteString(s)
	b.offset += UTF16Len(s)
	return b
}

func (b *Builder) Bold(s string) *Builder   { return b.styled("bold", s) }
func (b *Builder) Italic(s string) *Builder { return b.styled("italic", s) }
func (b *Builder) Code(s string) *Builder   { return b.styled("code", s) }

func (b *Builder) styled(kind, s string) *Builder {
	if s == "" {
		return b
	}
	b.entities = append(b.entities, tgbotapi.MessageEntity{
		Type:   kind,
		Offset: b.offset,
		Length: UTF16Len(s),
	})
	return b.Text(s)
}

// Result returns the text with trailing blanks trimmed. Entities are in
// offset order, as Telegram requires.
func (b *Builder) Result() ParseResult {
	return ParseResult{
		Text:     strings.TrimRight(b.sb.String(), " \n"),
		Entities: b.entities,
	}
}
