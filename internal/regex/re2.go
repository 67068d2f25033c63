package regex

import (
	"errors"
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
)

// RE2 compiles patterns with the standard library's linear-time engine.
type RE2 struct {
	maxProgramSize int
}

// NewRE2 returns the re2 engine. A positive maxProgramSize rejects patterns
// whose compiled program has more instructions than that.
func NewRE2(maxProgramSize int) *RE2 {
	return &RE2{maxProgramSize: maxProgramSize}
}

func (*RE2) Name() string { return EngineRE2 }

func (e *RE2) Compile(pattern string) (Pattern, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, re2CompileError(pattern, err)
	}
	return &re2Pattern{re: re, source: pattern, maxProgramSize: e.maxProgramSize}, nil
}

func re2CompileError(pattern string, err error) *CompileError {
	ce := &CompileError{Pattern: pattern, Message: err.Error(), Offset: -1, Err: err}
	var se *syntax.Error
	if errors.As(err, &se) {
		ce.Message = string(se.Code)
		ce.Offset = errorOffset(pattern, se)
	}
	return ce
}

// errorOffset returns the byte offset in pattern where parsing stopped.
// Unterminated groups and classes fail at the end of the pattern; other
// errors point at the start of the offending fragment.
func errorOffset(pattern string, se *syntax.Error) int {
	switch se.Code {
	case syntax.ErrMissingParen, syntax.ErrMissingBracket:
		return len(pattern)
	case syntax.ErrTrailingBackslash:
		return len(pattern) - 1
	case syntax.ErrUnexpectedParen:
		return unmatchedParen(pattern)
	}
	if se.Expr == "" {
		return -1
	}
	// The fragment may occur earlier in a valid position, e.g. inside a
	// class. Pick the first occurrence whose prefix already fails the same way.
	for from := 0; from < len(pattern); {
		i := strings.Index(pattern[from:], se.Expr)
		if i < 0 {
			break
		}
		i += from
		var pe *syntax.Error
		_, err := syntax.Parse(pattern[:i+len(se.Expr)], syntax.Perl)
		if errors.As(err, &pe) && pe.Code == se.Code {
			return i
		}
		from = i + 1
	}
	return strings.LastIndex(pattern, se.Expr)
}

// unmatchedParen returns the index of the first ')' without an open group,
// skipping escapes, \Q...\E literals and character classes.
func unmatchedParen(pattern string) int {
	depth := 0
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			if strings.HasPrefix(pattern[i:], `\Q`) {
				end := strings.Index(pattern[i+2:], `\E`)
				if end < 0 {
					return -1
				}
				i += 2 + end + 1
				continue
			}
			i++
		case '[':
			i = classEnd(pattern, i)
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// classEnd returns the index of the ']' closing the class opened at start.
// A ']' right after '[' or '[^' is a literal.
func classEnd(pattern string, start int) int {
	i := start + 1
	if i < len(pattern) && pattern[i] == '^' {
		i++
	}
	if i < len(pattern) && pattern[i] == ']' {
		i++
	}
	for ; i < len(pattern); i++ {
		switch {
		case pattern[i] == '\\':
			i++
		case strings.HasPrefix(pattern[i:], "[:"):
			if end := strings.Index(pattern[i+2:], ":]"); end >= 0 {
				i += 2 + end + 1
			}
		case pattern[i] == ']':
			return i
		}
	}
	return len(pattern)
}

type re2Pattern struct {
	re             *regexp.Regexp
	source         string
	maxProgramSize int
}

func (p *re2Pattern) Source() string { return p.source }

// Prepare checks the compiled program size against the configured limit.
func (p *re2Pattern) Prepare() error {
	if p.maxProgramSize <= 0 {
		return nil
	}
	parsed, err := syntax.Parse(p.source, syntax.Perl)
	if err != nil {
		return re2CompileError(p.source, err)
	}
	prog, err := syntax.Compile(parsed.Simplify())
	if err != nil {
		return re2CompileError(p.source, err)
	}
	if n := len(prog.Inst); n > p.maxProgramSize {
		return &CompileError{
			Pattern: p.source,
			Message: fmt.Sprintf("program too large (%d > %d instructions)", n, p.maxProgramSize),
			Offset:  -1,
		}
	}
	return nil
}

func (p *re2Pattern) NewMatchState() MatchState {
	if p.re == nil {
		return &re2State{}
	}
	return &re2State{ovector: make([]int, 0, 2*(p.re.NumSubexp()+1))}
}

// Match returns the number of the highest capture group that participated in
// the match plus one.
func (p *re2Pattern) Match(st MatchState, subject string) (int, error) {
	if p.re == nil {
		return ErrCodeReleased, &MatchError{Code: ErrCodeReleased, Message: "pattern released", Err: ErrReleased}
	}
	s, ok := st.(*re2State)
	if !ok || s.released {
		return ErrCodeMatchFailed, &MatchError{Code: ErrCodeMatchFailed, Message: "invalid match state"}
	}
	s.ovector = p.re.FindStringSubmatchIndex(subject)
	if s.ovector == nil {
		return NoMatch, nil
	}
	rc := 1
	for i := len(s.ovector)/2 - 1; i > 0; i-- {
		if s.ovector[2*i] >= 0 {
			rc = i + 1
			break
		}
	}
	return rc, nil
}

func (p *re2Pattern) Release() { p.re = nil }

type re2State struct {
	ovector  []int
	released bool
}

func (s *re2State) Release() {
	s.ovector = nil
	s.released = true
}
