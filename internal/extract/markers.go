package extract

import (
	"fmt"
	"go/ast"
	"slices"
	"strings"
)

// MarkerPrefix starts every weft comment marker
const MarkerPrefix = "+weft:"

// Marker names
const (
	MarkerController  = "controller"
	MarkerInterceptor = "interceptor"
	MarkerInitializer = "initializer"
	MarkerAction      = "action"
)

// marker arguments each marker accepts
var markerArgs = map[string][]string{
	MarkerController:  {"url"},
	MarkerInterceptor: {},
	MarkerInitializer: {},
	MarkerAction:      {"name", "content-type", "interceptors"},
}

// Marker is one parsed "+weft:<name> key=value ..." comment line
type Marker struct {
	Name string
	Args map[string]string
	// Text is the marker as written, for error messages
	Text string
}

// Arg returns a marker argument
func (m Marker) Arg(key string) (string, bool) {
	v, ok := m.Args[key]
	return v, ok
}

// List returns a comma separated argument as a list, dropping empty items
func (m Marker) List(key string) []string {
	v, ok := m.Args[key]
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// MarkerError is a malformed marker
type MarkerError struct {
	Text   string
	Reason string
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("marker %q: %s", e.Text, e.Reason)
}

// ParseMarkers returns the weft markers of a comment group in order
func ParseMarkers(doc *ast.CommentGroup) ([]Marker, error) {
	if doc == nil {
		return nil, nil
	}

	var markers []Marker
	for _, c := range doc.List {
		text, ok := strings.CutPrefix(c.Text, "//")
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)
		if !strings.HasPrefix(text, MarkerPrefix) {
			continue
		}
		m, err := ParseMarker(text)
		if err != nil {
			return nil, err
		}
		markers = append(markers, m)
	}
	return markers, nil
}

// ParseMarker parses a single marker line such as
// `+weft:action name=list content-type="text/html; charset=utf-8"`
func ParseMarker(text string) (Marker, error) {
	body := strings.TrimPrefix(text, MarkerPrefix)
	name, rest, _ := strings.Cut(body, " ")
	m := Marker{Name: name, Args: make(map[string]string), Text: text}

	allowed, known := markerArgs[name]
	if !known {
		return m, &MarkerError{Text: text, Reason: "unknown marker"}
	}

	args, err := splitArgs(rest)
	if err != nil {
		return m, &MarkerError{Text: text, Reason: err.Error()}
	}
	for _, arg := range args {
		key, value, hasValue := strings.Cut(arg, "=")
		if key == "" {
			return m, &MarkerError{Text: text, Reason: "argument without a name"}
		}
		if !slices.Contains(allowed, key) {
			return m, &MarkerError{Text: text, Reason: fmt.Sprintf("unknown argument %q", key)}
		}
		if _, dup := m.Args[key]; dup {
			return m, &MarkerError{Text: text, Reason: fmt.Sprintf("argument %q given twice", key)}
		}
		if !hasValue {
			value = "true"
		}
		m.Args[key] = value
	}
	return m, nil
}

// splitArgs splits on unquoted spaces and strips the quotes around values
func splitArgs(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		started bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\\' && quoted && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case ch == '"':
			quoted = !quoted
			started = true
		case (ch == ' ' || ch == '\t') && !quoted:
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteByte(ch)
			started = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote")
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}
