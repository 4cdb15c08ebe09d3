package hotreload

type (
	// Outcome of resolving a site.
	Outcome int
	// Site is a reload-enabled call site of function type F.
	//
	// Every call looks the symbol up in the artifact currently on disk and falls back to the
	// statically compiled body when that fails. State passed through F must use types of non-main
	// packages of the host module, so host and artifact agree on them.
	Site[F any] struct {
		rt       *Runtime
		Name     string
		Receiver string
		Symbol   string
		fallback F
		invalid  error
	}
)

const (
	Fallback Outcome = iota
	Reloaded
)

func (o Outcome) String() string {
	if o == Reloaded {
		return "reloaded"
	}
	return "fallback"
}

// NewSite of a function named name.
func NewSite[F any](rt *Runtime, name string, fallback F) *Site[F] {
	return NewMethodSite(rt, "", name, fallback)
}

// NewMethodSite of a method, exported by the artifact as Receiver_Name.
func NewMethodSite[F any](rt *Runtime, receiver, name string, fallback F) *Site[F] {
	s := &Site[F]{
		rt:       rt,
		Name:     name,
		Receiver: receiver,
		Symbol:   SymbolName(receiver, name),
		fallback: fallback,
	}
	s.invalid = ValidSymbol(s.Symbol)
	return s
}

// Resolve the function to run now without activating the runtime. The fallback is returned
// together with the reason whenever the artifact can not serve the site.
func (s *Site[F]) Resolve() (f F, o Outcome, err error) {
	defer func() {
		s.rt.metrics.calls.WithLabelValues(s.Symbol, o.String()).Inc()
	}()
	if s.invalid != nil {
		return s.fallback, Fallback, &LoadError{Stage: StageResolve, Path: s.rt.loader.Path(), Symbol: s.Symbol, Err: s.invalid}
	}
	var sym Symbol
	if sym, err = s.rt.loader.Lookup(s.Symbol); err != nil {
		return s.fallback, Fallback, err
	}
	if f, err = Resolve[F](sym); err != nil {
		return s.fallback, Fallback, &LoadError{Stage: StageResolve, Path: s.rt.loader.Path(), Symbol: s.Symbol, Err: err}
	}
	return f, Reloaded, nil
}

// Func activates the runtime and returns the function to call, logging why when it is the fallback.
func (s *Site[F]) Func() F {
	s.rt.Activate()
	f, _, err := s.Resolve()
	if err != nil {
		s.rt.diagnose(err)
	}
	return f
}

// Use calls fn with the function resolved by Func.
func (s *Site[F]) Use(fn func(F)) {
	fn(s.Func())
}
