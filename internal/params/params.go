// Package params parses updater command lines.
//
// Flags starting with "--" take every following token up to the next known flag.
// Flags starting with "-" take the next token unless it looks like a flag; switches
// never take a value.
package params

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mcdonaldj/updater/internal/errs"
)

// Command line flags.
const (
	Update         = "--update"
	UpdateDelay    = "-update.delay"
	Launch         = "--launch"
	LaunchHome     = "-launch.home"
	LaunchDelay    = "-launch.delay"
	LaunchElevated = "-launch.elevated"
	Elevated       = "-elevated"
	Callback       = "-callback"
	Session        = "-session"
	Stdin          = "-stdin"
	Help           = "-help"
	What           = "-?"
	Version        = "-version"
	Init           = "-init"
	LogLevel       = "-log.level"
	LogFile        = "-log.file"
	LogFileAppend  = "-log.file.append"
)

type kind int

const (
	single kind = iota
	multi
	toggle
)

var known = map[string]kind{
	Update:         multi,
	UpdateDelay:    single,
	Launch:         multi,
	LaunchHome:     single,
	LaunchDelay:    single,
	LaunchElevated: toggle,
	Elevated:       toggle,
	Callback:       single,
	Session:        single,
	Stdin:          toggle,
	Help:           toggle,
	What:           toggle,
	Version:        toggle,
	Init:           toggle,
	LogLevel:       single,
	LogFile:        single,
	LogFileAppend:  toggle,
}

const trueValue = "true"

// Params holds parsed flag values in command line order.
type Params struct {
	values map[string][]string
	order  []string
}

// Parse parses args, which must not include the program name.
func Parse(args []string) (*Params, error) {
	p := &Params{values: make(map[string][]string)}

	for i := 0; i < len(args); i++ {
		flag := args[i]
		k, ok := known[flag]
		if !ok {
			if strings.HasPrefix(flag, "-") {
				return nil, errs.Argument("unknown flag: %s", flag)
			}
			return nil, errs.Argument("unexpected value: %s", flag)
		}
		if _, seen := p.values[flag]; !seen {
			p.order = append(p.order, flag)
		}

		switch k {
		case toggle:
			p.values[flag] = []string{trueValue}
		case single:
			if i+1 < len(args) && !isFlag(args[i+1]) {
				i++
				p.values[flag] = []string{args[i]}
			} else {
				p.values[flag] = []string{trueValue}
			}
		case multi:
			var vals []string
			for i+1 < len(args) {
				if _, isKnown := known[args[i+1]]; isKnown {
					break
				}
				i++
				vals = append(vals, args[i])
			}
			p.values[flag] = append(p.values[flag], vals...)
		}
	}

	return p, nil
}

// ParseReader parses one token per line from r. Blank trailing lines are ignored.
func ParseReader(r io.Reader) (*Params, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Argument("read parameters: %v", err)
	}
	for len(tokens) > 0 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}
	return Parse(tokens)
}

func isFlag(token string) bool {
	if _, ok := known[token]; ok {
		return true
	}
	return strings.HasPrefix(token, "-") && len(token) > 1
}

// Len returns the number of distinct flags given.
func (p *Params) Len() int { return len(p.order) }

// Flags returns the distinct flags in the order they first appeared.
func (p *Params) Flags() []string { return append([]string(nil), p.order...) }

// IsSet reports whether flag was given.
func (p *Params) IsSet(flag string) bool {
	_, ok := p.values[flag]
	return ok
}

// IsTrue reports whether flag was given as a switch or with the value "true".
func (p *Params) IsTrue(flag string) bool {
	return strings.EqualFold(p.Get(flag), trueValue)
}

// Get returns the first value of flag, or "" when it is not set.
func (p *Params) Get(flag string) string {
	vals := p.values[flag]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Values returns every value given for flag.
func (p *Params) Values(flag string) []string {
	return append([]string(nil), p.values[flag]...)
}

// Int returns flag as an integer, or def when flag is not set.
func (p *Params) Int(flag string, def int) (int, error) {
	if !p.IsSet(flag) {
		return def, nil
	}
	n, err := strconv.Atoi(p.Get(flag))
	if err != nil {
		return 0, errs.Argument("%s expects a number, got %q", flag, p.Get(flag))
	}
	return n, nil
}

// Millis returns flag as a millisecond duration, or def when flag is not set.
func (p *Params) Millis(flag string, def time.Duration) (time.Duration, error) {
	if !p.IsSet(flag) {
		return def, nil
	}
	n, err := p.Int(flag, 0)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errs.Argument("%s must not be negative: %d", flag, n)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Pair is a source archive and the directory it updates.
type Pair struct {
	Source string
	Target string
}

// Pairs returns the --update values grouped as source/target pairs.
func (p *Params) Pairs() ([]Pair, error) {
	vals := p.values[Update]
	if len(vals) == 0 {
		return nil, errs.Argument("no update files specified")
	}

	pairs := make([]Pair, 0, len(vals)/2)
	for i := 0; i < len(vals); i += 2 {
		if i+1 >= len(vals) {
			return nil, errs.Argument("target parameter not specified for source %s", vals[i])
		}
		pairs = append(pairs, Pair{Source: vals[i], Target: vals[i+1]})
	}
	return pairs, nil
}

// Builder assembles a command line that Parse accepts.
type Builder struct {
	tokens []string
}

// Flag appends a flag with its values.
func (b *Builder) Flag(flag string, values ...string) *Builder {
	b.tokens = append(b.tokens, flag)
	b.tokens = append(b.tokens, values...)
	return b
}

// Tokens returns the assembled command line.
func (b *Builder) Tokens() []string {
	return append([]string(nil), b.tokens...)
}

// Lines returns the command line as one token per line, for ParseReader.
func (b *Builder) Lines() (string, error) {
	var sb strings.Builder
	for _, t := range b.tokens {
		if strings.ContainsAny(t, "\r\n") {
			return "", errs.Argument("parameter contains a line break: %q", t)
		}
		sb.WriteString(t)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
