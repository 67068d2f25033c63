package regex

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// PCRE compiles patterns with a backtracking engine that supports
// lookaround and backreferences.
//
// The syntax is the .NET dialect of github.com/dlclark/regexp2, not PCRE2.
// \uXXXX takes exactly four hex digits. PCRE2-only constructs such as
// possessive quantifiers (a++), \K and \Q...\E are rejected.
type PCRE struct {
	matchTimeout time.Duration
}

// NewPCRE returns the pcre engine. A positive matchTimeout bounds every
// match.
func NewPCRE(matchTimeout time.Duration) *PCRE {
	return &PCRE{matchTimeout: matchTimeout}
}

func (*PCRE) Name() string { return EnginePCRE }

func (e *PCRE) Compile(pattern string) (Pattern, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, &CompileError{
			Pattern: pattern,
			Message: strings.TrimPrefix(err.Error(), "error parsing regexp: "),
			Offset:  -1,
			Err:     err,
		}
	}
	if e.matchTimeout > 0 {
		re.MatchTimeout = e.matchTimeout
	}
	return &pcrePattern{re: re, source: pattern}, nil
}

type pcrePattern struct {
	re     *regexp2.Regexp
	source string
}

func (p *pcrePattern) Source() string { return p.source }

func (p *pcrePattern) NewMatchState() MatchState { return &pcreState{} }

func (p *pcrePattern) Match(st MatchState, subject string) (int, error) {
	if p.re == nil {
		return ErrCodeReleased, &MatchError{Code: ErrCodeReleased, Message: "pattern released", Err: ErrReleased}
	}
	s, ok := st.(*pcreState)
	if !ok || s.released {
		return ErrCodeMatchFailed, &MatchError{Code: ErrCodeMatchFailed, Message: "invalid match state"}
	}
	m, err := p.re.FindStringMatch(subject)
	if err != nil {
		code := ErrCodeMatchFailed
		if strings.Contains(err.Error(), "timeout") {
			code = ErrCodeTimeout
		}
		return code, &MatchError{Code: code, Message: err.Error(), Err: err}
	}
	s.last = m
	if m == nil {
		return NoMatch, nil
	}
	return m.GroupCount(), nil
}

func (p *pcrePattern) Release() { p.re = nil }

type pcreState struct {
	last     *regexp2.Match
	released bool
}

func (s *pcreState) Release() {
	s.last = nil
	s.released = true
}
