package resolver

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// EventKind identifies what a resolver process reported.
type EventKind int

// Event kinds. Parsers emit the first three; the process layer adds the rest.
const (
	EventOption EventKind = iota + 1
	EventNoResults
	EventImported
	EventExit
	EventError
	EventChunkEnd // all events of one output read have been delivered
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case EventOption:
		return "option"
	case EventNoResults:
		return "no_results"
	case EventImported:
		return "imported"
	case EventExit:
		return "exit"
	case EventError:
		return "error"
	case EventChunkEnd:
		return "chunk_end"
	default:
		return "unknown"
	}
}

// Event is a single observation on a resolver process.
type Event struct {
	Kind     EventKind
	Option   string // EventOption
	Path     string // EventImported
	ExitCode int    // EventExit
	Err      error  // EventExit (wait error) and EventError
}

// OutputParser turns raw resolver output into events.
//
// Chunks arrive in order but may split lines anywhere. Implementations keep
// whatever state they need between calls and never panic on malformed input.
// A parser instance serves exactly one process.
type OutputParser interface {
	// Feed consumes the next chunk of output.
	Feed(chunk []byte) []Event

	// Flush is called once at end of stream to parse any trailing partial line.
	Flush() []Event
}

// ParserFactory creates a fresh parser for each spawned process.
type ParserFactory func() OutputParser

// DefaultExtension is the component file extension.
const DefaultExtension = ".tsx"

// maxPendingLine bounds how much of an unterminated line is buffered.
const maxPendingLine = 1 << 20

// optionPattern matches "<marker> <token> [- description]" lines.
var optionPattern = regexp.MustCompile(`^\s*[-*↓❯>•]?\s*([A-Za-z0-9_:@/.-]+)(?:\s+-.*)?$`)

// TextParser parses the free-text output of the interactive resolver.
//
// Recognized lines:
//   - the no-results sentinel, anywhere in a line
//   - "[-*↓❯>•] token [- description]", yielding token as an option
//   - "Imported <name> to /abs/path<ext>", yielding the path
//
// The sentinel and the confirmation are also recognized on an unterminated
// trailing line, since interactive CLIs tend to print them without a newline.
// Options are only taken from complete lines.
type TextParser struct {
	sentinel   string
	importedRe *regexp.Regexp

	pending      []byte
	sawNoResults bool
	sawImported  bool
}

// NewTextParser creates a parser for the given component extension and
// no-results sentinel. Empty arguments select the defaults.
func NewTextParser(extension, sentinel string) *TextParser {
	if extension == "" {
		extension = DefaultExtension
	}
	if sentinel == "" {
		sentinel = NoResultsMessage
	}
	return &TextParser{
		sentinel:   sentinel,
		importedRe: regexp.MustCompile(`Imported.*?\s+to\s+(/.*` + regexp.QuoteMeta(extension) + `)`),
	}
}

// Feed implements OutputParser.
func (p *TextParser) Feed(chunk []byte) []Event {
	p.pending = append(p.pending, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(p.pending, '\n')
		if i < 0 {
			break
		}
		line := string(p.pending[:i])
		p.pending = p.pending[i+1:]
		events = p.parseLine(line, events, true)
	}

	if len(p.pending) > maxPendingLine {
		p.pending = p.pending[len(p.pending)-maxPendingLine:]
	}
	if len(p.pending) > 0 {
		events = p.parseLine(string(p.pending), events, false)
	}
	return events
}

// Flush implements OutputParser.
func (p *TextParser) Flush() []Event {
	if len(p.pending) == 0 {
		return nil
	}
	line := string(p.pending)
	p.pending = nil
	return p.parseLine(line, nil, true)
}

// parseLine appends the events found in one line. Options are only
// considered when the line is complete.
func (p *TextParser) parseLine(raw string, events []Event, complete bool) []Event {
	line := cleanLine(raw)
	if line == "" {
		return events
	}

	if !p.sawNoResults && strings.Contains(line, p.sentinel) {
		p.sawNoResults = true
		return append(events, Event{Kind: EventNoResults})
	}

	if m := p.importedRe.FindStringSubmatch(line); m != nil {
		if p.sawImported {
			return events
		}
		p.sawImported = true
		return append(events, Event{Kind: EventImported, Path: strings.TrimSpace(m[1])})
	}

	if !complete {
		return events
	}
	if token, ok := ParseOptionLine(line); ok {
		events = append(events, Event{Kind: EventOption, Option: token})
	}
	return events
}

// ParseOptionLine extracts the option token from a single output line.
func ParseOptionLine(line string) (string, bool) {
	m := optionPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	token := m[1]
	// Separator rules such as "----" are not options.
	if !strings.ContainsFunc(token, isAlnum) {
		return "", false
	}
	return token, true
}

// cleanLine strips terminal escapes and keeps only the text after the last
// carriage return, which is what a terminal would end up showing.
func cleanLine(raw string) string {
	line := ansi.Strip(raw)
	line = strings.TrimRight(line, "\r")
	if i := strings.LastIndexByte(line, '\r'); i >= 0 {
		line = line[i+1:]
	}
	return line
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}
