package domain

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Placeholder names the broker knows how to fill at launch time.
const (
	PlaceholderHost = "host"
	PlaceholderPort = "port"
)

var ErrEmptyCommand = errors.New("command is empty")

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

type part struct {
	literal     string
	placeholder string // empty for literals
}

// Command is a parsed launch template: an ordered argv where each argument
// is a sequence of literal runs and brace-delimited placeholders. It is
// rendered by substitution only, never re-parsed through a shell, so player
// or developer supplied values cannot change the argument structure.
type Command struct {
	args [][]part
	raw  string
}

// ParseCommand splits raw into whitespace-separated arguments and marks
// {name} occurrences inside each argument as placeholders.
func ParseCommand(raw string) (Command, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{}, ErrEmptyCommand
	}
	cmd := Command{raw: raw, args: make([][]part, 0, len(fields))}
	for _, f := range fields {
		var parts []part
		rest := f
		for {
			loc := placeholderRe.FindStringIndex(rest)
			if loc == nil {
				if rest != "" {
					parts = append(parts, part{literal: rest})
				}
				break
			}
			if loc[0] > 0 {
				parts = append(parts, part{literal: rest[:loc[0]]})
			}
			name := rest[loc[0]+1 : loc[1]-1]
			parts = append(parts, part{placeholder: name})
			rest = rest[loc[1]:]
		}
		cmd.args = append(cmd.args, parts)
	}
	return cmd, nil
}

func (c Command) IsZero() bool { return len(c.args) == 0 }

func (c Command) String() string { return c.raw }

// Commands persist as their raw template string.
func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.raw)
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*c = Command{}
		return nil
	}
	parsed, err := ParseCommand(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Placeholders returns the set of placeholder names appearing in the template.
func (c Command) Placeholders() map[string]bool {
	out := make(map[string]bool)
	for _, arg := range c.args {
		for _, p := range arg {
			if p.placeholder != "" {
				out[p.placeholder] = true
			}
		}
	}
	return out
}

// Render substitutes recognized placeholders and returns the final argv.
// Unknown placeholders are left verbatim; rejecting them is the catalog's
// job at publish time, not the launcher's.
func (c Command) Render(subs map[string]string) []string {
	argv := make([]string, 0, len(c.args))
	for _, arg := range c.args {
		var b strings.Builder
		for _, p := range arg {
			if p.placeholder == "" {
				b.WriteString(p.literal)
				continue
			}
			if v, ok := subs[p.placeholder]; ok {
				b.WriteString(v)
			} else {
				b.WriteString("{" + p.placeholder + "}")
			}
		}
		argv = append(argv, b.String())
	}
	return argv
}
