package regex

import "sync/atomic"

// CountingStats is a snapshot of Counting's counters.
type CountingStats struct {
	Compiles       int64
	CompileErrors  int64
	Releases       int64
	StatesCreated  int64
	StatesReleased int64
	Matches        int64
	DoubleReleases int64
}

// LivePatterns returns the number of compiled patterns not yet released.
func (s CountingStats) LivePatterns() int64 { return s.Compiles - s.Releases }

// LiveStates returns the number of match states not yet released.
func (s CountingStats) LiveStates() int64 { return s.StatesCreated - s.StatesReleased }

// Counting wraps an Engine and counts compiles, releases and match states so
// ownership can be checked.
type Counting struct {
	Engine

	compiles       atomic.Int64
	compileErrors  atomic.Int64
	releases       atomic.Int64
	statesCreated  atomic.Int64
	statesReleased atomic.Int64
	matches        atomic.Int64
	doubleReleases atomic.Int64
}

// NewCounting wraps engine.
func NewCounting(engine Engine) *Counting {
	return &Counting{Engine: engine}
}

func (c *Counting) Compile(pattern string) (Pattern, error) {
	p, err := c.Engine.Compile(pattern)
	if err != nil {
		c.compileErrors.Add(1)
		return nil, err
	}
	c.compiles.Add(1)
	return &countingPattern{Pattern: p, c: c}, nil
}

// Stats returns a snapshot of the counters.
func (c *Counting) Stats() CountingStats {
	return CountingStats{
		Compiles:       c.compiles.Load(),
		CompileErrors:  c.compileErrors.Load(),
		Releases:       c.releases.Load(),
		StatesCreated:  c.statesCreated.Load(),
		StatesReleased: c.statesReleased.Load(),
		Matches:        c.matches.Load(),
		DoubleReleases: c.doubleReleases.Load(),
	}
}

type countingPattern struct {
	Pattern
	c        *Counting
	released atomic.Bool
}

func (p *countingPattern) Prepare() error {
	if prep, ok := p.Pattern.(Preparer); ok {
		return prep.Prepare()
	}
	return nil
}

func (p *countingPattern) NewMatchState() MatchState {
	p.c.statesCreated.Add(1)
	return &countingState{MatchState: p.Pattern.NewMatchState(), c: p.c}
}

func (p *countingPattern) Match(st MatchState, subject string) (int, error) {
	p.c.matches.Add(1)
	if cs, ok := st.(*countingState); ok {
		st = cs.MatchState
	}
	return p.Pattern.Match(st, subject)
}

func (p *countingPattern) Release() {
	if p.released.Swap(true) {
		p.c.doubleReleases.Add(1)
		return
	}
	p.c.releases.Add(1)
	p.Pattern.Release()
}

type countingState struct {
	MatchState
	c *Counting
}

func (s *countingState) Release() {
	s.c.statesReleased.Add(1)
	s.MatchState.Release()
}
