// Package uritemplate implements RFC 6570 URI Templates, Levels 1 through 3,
// for matching resource-read requests against declared templates and for
// constructing concrete URIs from variable bindings.
package uritemplate

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	domainerrors "github.com/mcprt/server/internal/errors"
)

const domain = "uritemplate"

// Level is the highest RFC 6570 level a template exercises.
type Level int

const (
	Level1 Level = 1 // simple string expansion only
	Level2 Level = 2 // + reserved, # fragment
	Level3 Level = 3 // + multiple variables per expression, ., /, ;, ?, &
)

var varNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

var disallowedLiteral = "<>\\^`{}|"
var reservedOperators = "=,!@|"

// varSpec is one variable reference inside an expression, with its optional
// modifier.
type varSpec struct {
	name       string
	explode    bool
	prefixLen  int // 0 means "no prefix limit"
}

// token is either a literal run of text or a parsed expression.
type token struct {
	literal string // valid when op == 0 and vars == nil
	op      byte   // 0 for a literal token; otherwise one of + # . / ; ? &
	vars    []varSpec
}

// Template is a parsed RFC 6570 template, ready for Match or Construct.
type Template struct {
	raw    string
	tokens []token
	level  Level
}

// Parse validates and parses template, returning the highest RFC 6570 level
// it uses. A non-nil error carries a diagnostic identifying what's wrong.
func Parse(template string) (*Template, error) {
	if template == "" {
		return nil, domainerrors.New(domain, "Parse", domainerrors.ErrBadRequest, fmt.Errorf("empty template"))
	}

	t := &Template{raw: template, level: Level1}
	i := 0
	depth := 0
	var literalBuf strings.Builder

	flushLiteral := func() error {
		if literalBuf.Len() == 0 {
			return nil
		}
		lit := literalBuf.String()
		for _, r := range lit {
			if strings.ContainsRune(disallowedLiteral, r) {
				return domainerrors.New(domain, "Parse", domainerrors.ErrBadRequest,
					fmt.Errorf("disallowed literal character %q", r))
			}
		}
		t.tokens = append(t.tokens, token{literal: lit})
		literalBuf.Reset()
		return nil
	}

	for i < len(template) {
		c := template[i]
		switch c {
		case '{':
			depth++
			if depth > 1 {
				return nil, domainerrors.New(domain, "Parse", domainerrors.ErrBadRequest, fmt.Errorf("nested expression"))
			}
			if err := flushLiteral(); err != nil {
				return nil, err
			}
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return nil, domainerrors.New(domain, "Parse", domainerrors.ErrBadRequest, fmt.Errorf("unbalanced braces"))
			}
			expr := template[i+1 : i+end]
			tok, lvl, err := parseExpression(expr)
			if err != nil {
				return nil, err
			}
			if lvl > t.level {
				t.level = lvl
			}
			t.tokens = append(t.tokens, tok)
			i += end + 1
			depth--
		case '}':
			return nil, domainerrors.New(domain, "Parse", domainerrors.ErrBadRequest, fmt.Errorf("unbalanced braces"))
		default:
			literalBuf.WriteByte(c)
			i++
		}
	}
	if depth != 0 {
		return nil, domainerrors.New(domain, "Parse", domainerrors.ErrBadRequest, fmt.Errorf("unbalanced braces"))
	}
	if err := flushLiteral(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate is an alias for Parse kept for symmetry with the
// validate/match/construct naming convention; it discards the parsed
// template.
func Validate(template string) (Level, error) {
	t, err := Parse(template)
	if err != nil {
		return 0, err
	}
	return t.level, nil
}

func parseExpression(expr string) (token, Level, error) {
	if expr == "" {
		return token{}, 0, domainerrors.New(domain, "parseExpression", domainerrors.ErrBadRequest, fmt.Errorf("empty expression"))
	}

	var op byte
	level := Level1
	rest := expr
	switch expr[0] {
	case '+':
		op, level, rest = '+', Level2, expr[1:]
	case '#':
		op, level, rest = '#', Level2, expr[1:]
	case '.':
		op, level, rest = '.', Level3, expr[1:]
	case '/':
		op, level, rest = '/', Level3, expr[1:]
	case ';':
		op, level, rest = ';', Level3, expr[1:]
	case '?':
		op, level, rest = '?', Level3, expr[1:]
	case '&':
		op, level, rest = '&', Level3, expr[1:]
	default:
		op, level, rest = 0, Level1, expr
	}

	if strings.ContainsAny(string(rest[0]), reservedOperators) {
		return token{}, 0, domainerrors.New(domain, "parseExpression", domainerrors.ErrBadRequest,
			fmt.Errorf("reserved operator character in expression %q", expr))
	}

	parts := strings.Split(rest, ",")
	if len(parts) > 1 {
		level = Level3
	}
	specs := make([]varSpec, 0, len(parts))
	for _, p := range parts {
		spec, err := parseVarSpec(p)
		if err != nil {
			return token{}, 0, err
		}
		if spec.explode || spec.prefixLen > 0 {
			if level < Level3 {
				level = Level3
			}
		}
		specs = append(specs, spec)
	}
	return token{op: op, vars: specs}, level, nil
}

func parseVarSpec(p string) (varSpec, error) {
	spec := varSpec{}
	switch {
	case strings.HasSuffix(p, "*"):
		spec.explode = true
		p = strings.TrimSuffix(p, "*")
	case strings.Contains(p, ":"):
		idx := strings.IndexByte(p, ':')
		name, lenStr := p[:idx], p[idx+1:]
		n := 0
		for _, r := range lenStr {
			if r < '0' || r > '9' {
				return spec, domainerrors.New(domain, "parseVarSpec", domainerrors.ErrBadRequest,
					fmt.Errorf("invalid prefix length in %q", p))
			}
			n = n*10 + int(r-'0')
		}
		if n < 1 || n >= 10000 {
			return spec, domainerrors.New(domain, "parseVarSpec", domainerrors.ErrBadRequest,
				fmt.Errorf("prefix length out of range in %q", p))
		}
		spec.prefixLen = n
		p = name
	}
	if !varNameRE.MatchString(p) {
		return spec, domainerrors.New(domain, "parseVarSpec", domainerrors.ErrBadRequest,
			fmt.Errorf("invalid variable name %q", p))
	}
	spec.name = p
	return spec, nil
}

// Level reports the highest RFC 6570 level this template exercises.
func (t *Template) Level() Level { return t.level }

// String returns the original template text.
func (t *Template) String() string { return t.raw }

// VariableNames returns every variable name referenced by the template, in
// declaration order, deduplicated.
func (t *Template) VariableNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, tok := range t.tokens {
		for _, v := range tok.vars {
			if !seen[v.name] {
				seen[v.name] = true
				names = append(names, v.name)
			}
		}
	}
	return names
}

func operatorTerminators(op byte) string {
	switch op {
	case 0:
		return "/?#"
	case '+':
		return "?#"
	case '#':
		return ""
	case '.':
		return "/?#"
	case '/':
		return "?#"
	case ';':
		return "?#"
	case '?', '&':
		return "#"
	default:
		return "/?#"
	}
}

func operatorSeparator(op byte) byte {
	switch op {
	case '.':
		return '.'
	case '/':
		return '/'
	case ';':
		return ';'
	case '?':
		return '&'
	case '&':
		return '&'
	default:
		return ','
	}
}

// Match binds uri against the template: fragment expression first,
// then query/query-continuation, then left-to-right over the remainder
// (scheme/authority/path). Returns the extracted bindings and true on
// success, or false if uri does not match the template.
func (t *Template) Match(uri string) (map[string]string, bool) {
	fragPart := ""
	mainPart := uri
	if idx := strings.IndexByte(uri, '#'); idx >= 0 {
		fragPart = uri[idx+1:]
		mainPart = uri[:idx]
	}
	queryPart := ""
	pathPart := mainPart
	if idx := strings.IndexByte(mainPart, '?'); idx >= 0 {
		queryPart = mainPart[idx+1:]
		pathPart = mainPart[:idx]
	}

	bindings := map[string]string{}

	var fragToken, pathTokens, queryTokens []token
	for _, tok := range t.tokens {
		switch tok.op {
		case '#':
			fragToken = append(fragToken, tok)
		case '?', '&':
			queryTokens = append(queryTokens, tok)
		default:
			pathTokens = append(pathTokens, tok)
		}
	}

	if len(fragToken) > 0 {
		if !matchFragment(fragToken[0], fragPart, bindings) {
			return nil, false
		}
	} else if fragPart != "" {
		return nil, false
	}

	if len(queryTokens) > 0 {
		if !matchQuery(queryTokens, queryPart, bindings) {
			return nil, false
		}
	} else if queryPart != "" {
		return nil, false
	}

	if !matchPath(pathTokens, pathPart, bindings) {
		return nil, false
	}

	return bindings, true
}

func matchFragment(tok token, frag string, bindings map[string]string) bool {
	if len(tok.vars) != 1 {
		return false
	}
	v := tok.vars[0]
	if frag == "" {
		return false
	}
	bindings[v.name] = frag
	return true
}

func matchQuery(tokens []token, query string, bindings map[string]string) bool {
	if query == "" {
		return allQueryVarsOptional(tokens)
	}
	pairs := strings.Split(query, "&")
	values := map[string]string{}
	for _, p := range pairs {
		kv := strings.SplitN(p, "=", 2)
		key := kv[0]
		val := ""
		if len(kv) == 2 {
			val = kv[1]
		}
		if decoded, err := url.QueryUnescape(val); err == nil {
			val = decoded
		}
		values[key] = val
	}
	for _, tok := range tokens {
		for _, v := range tok.vars {
			if val, ok := values[v.name]; ok {
				bindings[v.name] = val
			}
		}
	}
	return true
}

func allQueryVarsOptional(tokens []token) bool {
	return true
}

func matchPath(tokens []token, path string, bindings map[string]string) bool {
	remaining := path
	for idx, tok := range tokens {
		if tok.op == 0 && tok.vars == nil {
			if !strings.HasPrefix(remaining, tok.literal) {
				return false
			}
			remaining = remaining[len(tok.literal):]
			continue
		}

		isLast := true
		for _, next := range tokens[idx+1:] {
			if next.op == 0 && next.vars == nil {
				isLast = false
				break
			}
			if next.vars != nil {
				isLast = false
				break
			}
		}

		nextLiteralPrefix := ""
		for _, next := range tokens[idx+1:] {
			if next.op == 0 && next.vars == nil {
				nextLiteralPrefix = next.literal
				break
			}
			if next.vars != nil {
				break
			}
		}

		var segment string
		if nextLiteralPrefix != "" {
			pos := strings.Index(remaining, nextLiteralPrefix)
			if pos < 0 {
				return false
			}
			segment = remaining[:pos]
			remaining = remaining[pos:]
		} else if isLast && tok.op != 0 {
			segment = remaining
			remaining = ""
		} else {
			terminators := operatorTerminators(tok.op)
			pos := strings.IndexAny(remaining, terminators)
			if pos < 0 {
				segment = remaining
				remaining = ""
			} else {
				segment = remaining[:pos]
				remaining = remaining[pos:]
			}
		}

		if tok.op == '/' {
			segment = strings.TrimPrefix(segment, "/")
		}
		if tok.op == ';' {
			segment = strings.TrimPrefix(segment, ";")
		}

		if !bindPathSegment(tok, segment, bindings) {
			return false
		}
	}
	return remaining == ""
}

func bindPathSegment(tok token, segment string, bindings map[string]string) bool {
	if len(tok.vars) == 0 {
		return true
	}
	if len(tok.vars) == 1 {
		v := tok.vars[0]
		if v.explode && tok.op == '/' {
			parts := strings.Split(segment, "/")
			bindings[v.name] = strings.Join(parts, ",")
			return true
		}
		if segment == "" && tok.op != 0 {
			return false
		}
		bindings[v.name] = segment
		return true
	}
	sep := string(operatorSeparator(tok.op))
	values := strings.Split(segment, sep)
	if len(values) != len(tok.vars) {
		return false
	}
	for i, v := range tok.vars {
		bindings[v.name] = values[i]
	}
	return true
}

// Construct is the deterministic inverse of Match. A variable absent from
// vars is left out of the expansion; Construct does not check for missing
// variables and always returns a nil error.
func (t *Template) Construct(vars map[string]string) (string, error) {
	var b strings.Builder
	for _, tok := range t.tokens {
		if tok.op == 0 && tok.vars == nil {
			b.WriteString(tok.literal)
			continue
		}
		piece, err := constructExpression(tok, vars)
		if err != nil {
			return "", err
		}
		b.WriteString(piece)
	}
	return b.String(), nil
}

func constructExpression(tok token, vars map[string]string) (string, error) {
	var present []varSpec
	for _, v := range tok.vars {
		if _, ok := vars[v.name]; ok {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return "", nil
	}

	sep := string(operatorSeparator(tok.op))
	first := true
	var b strings.Builder

	prefix := ""
	switch tok.op {
	case '+':
	case '#':
		prefix = "#"
	case '.':
		prefix = "."
	case '/':
		prefix = "/"
	case ';':
		prefix = ";"
	case '?':
		prefix = "?"
	case '&':
		prefix = "&"
	}
	b.WriteString(prefix)

	for _, v := range present {
		val := vars[v.name]
		if v.prefixLen > 0 && len(val) > v.prefixLen {
			val = val[:v.prefixLen]
		}
		encoded := encodeValue(tok.op, v, val)
		if !first {
			b.WriteString(sep)
		}
		first = false
		if tok.op == ';' {
			if encoded == "" {
				b.WriteString(v.name)
			} else {
				b.WriteString(v.name + "=" + encoded)
			}
		} else if tok.op == '?' || tok.op == '&' {
			b.WriteString(v.name + "=" + encoded)
		} else {
			b.WriteString(encoded)
		}
	}
	return b.String(), nil
}

func encodeValue(op byte, v varSpec, val string) string {
	if v.explode && op == '/' {
		parts := strings.Split(val, ",")
		for i, p := range parts {
			parts[i] = pathEscape(p)
		}
		return strings.Join(parts, "/")
	}
	switch op {
	case '+', '#':
		return reservedEscape(val)
	case '?', '&', ';':
		return url.QueryEscape(val)
	default:
		return pathEscape(val)
	}
}

func pathEscape(s string) string {
	return url.PathEscape(s)
}

func reservedEscape(s string) string {
	// Reserved expansion does not percent-encode characters in the
	// reserved set; url.PathEscape encodes more than that, so unescape the
	// reserved set back afterward.
	escaped := url.PathEscape(s)
	replacer := strings.NewReplacer(
		"%2F", "/", "%3A", ":", "%3F", "?", "%23", "#",
		"%5B", "[", "%5D", "]", "%40", "@", "%21", "!",
		"%24", "$", "%26", "&", "%27", "'", "%28", "(",
		"%29", ")", "%2A", "*", "%2B", "+", "%2C", ",",
		"%3B", ";", "%3D", "=",
	)
	return replacer.Replace(escaped)
}

// BestMatch selects the best-matching template among candidates per the
// spec's longest-match-wins, declaration-order-tiebreak rule. candidates
// must be supplied in declaration order.
func BestMatch(uri string, candidates []*Template) (*Template, map[string]string, bool) {
	type result struct {
		idx      int
		tmpl     *Template
		bindings map[string]string
	}
	var results []result
	for i, c := range candidates {
		if bindings, ok := c.Match(uri); ok {
			results = append(results, result{idx: i, tmpl: c, bindings: bindings})
		}
	}
	if len(results) == 0 {
		return nil, nil, false
	}
	sort.SliceStable(results, func(i, j int) bool {
		if len(results[i].bindings) != len(results[j].bindings) {
			return len(results[i].bindings) > len(results[j].bindings)
		}
		return results[i].idx < results[j].idx
	})
	best := results[0]
	return best.tmpl, best.bindings, true
}
