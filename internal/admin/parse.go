// Package admin parses and executes the /admin text commands.
package admin

import (
	"errors"
	"strings"
	"unicode"
)

// Prefix introduces every admin command.
const Prefix = "/admin"

// ErrUnterminatedQuote indicates a quoted argument without its closing quote.
var ErrUnterminatedQuote = errors.New("admin: unterminated quote")

// Command is a parsed admin command line.
type Command struct {
	Name string
	Args []string
}

// IsCommand reports whether text uses the admin command syntax.
func IsCommand(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < len(Prefix) || !strings.EqualFold(text[:len(Prefix)], Prefix) {
		return false
	}
	rest := text[len(Prefix):]
	return rest == "" || unicode.IsSpace(rune(rest[0]))
}

// Parse splits an admin command line into subcommand and arguments. The
// subcommand is lower-cased; an empty subcommand is reported as "".
func Parse(text string) (Command, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return Command{}, err
	}
	if len(tokens) == 0 || !strings.EqualFold(tokens[0], Prefix) {
		return Command{}, errors.New("admin: not an admin command")
	}
	cmd := Command{}
	if len(tokens) > 1 {
		cmd.Name = strings.ToLower(tokens[1])
		cmd.Args = tokens[2:]
	}
	return cmd, nil
}

// Tokenize splits line on whitespace. Double-quoted sections form a single
// token with the quotes removed; a backslash escapes a quote inside them.
func Tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inQuote bool
		started bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inQuote && r == '\\' && i+1 < len(runes) && runes[i+1] == '"':
			current.WriteRune('"')
			i++
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && unicode.IsSpace(r):
			if started {
				tokens = append(tokens, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, ErrUnterminatedQuote
	}
	if started {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
