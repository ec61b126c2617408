package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// The trailing newline is trimmed. If EOF occurs after some input was read,
// the partial line is returned.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ParseFields turns name=value arguments into a patch. A value that parses
// as JSON (numbers, booleans, null, quoted strings) keeps its JSON type;
// anything else is taken as a plain string.
//
//	name=Bridge amount=1200.5 customer="City of Riga"
func ParseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", arg)
		}

		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		fields[name] = v
	}
	return fields, nil
}

// splitArgs splits a command line on spaces, keeping double-quoted parts
// together: a="b c" becomes a=b c.
func splitArgs(line string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote bool
		open  bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quote = !quote
			open = true
		case r == ' ' || r == '\t':
			if quote {
				cur.WriteRune(r)
				continue
			}
			if open {
				out = append(out, cur.String())
				cur.Reset()
				open = false
			}
		default:
			cur.WriteRune(r)
			open = true
		}
	}
	if open {
		out = append(out, cur.String())
	}
	return out
}
