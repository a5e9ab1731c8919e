package memsource

// Option is the interface for the options of the Source.
type Option interface {
	apply(*Source)
}

type optionFunc func(*Source)

func (f optionFunc) apply(s *Source) {
	f(s)
}

// WithAutoIncrement enables or disables numbering of rows inserted without an integer primary key.
// It is enabled by default.
func WithAutoIncrement(enabled bool) Option {
	return optionFunc(func(s *Source) {
		s.autoIncrement = enabled
	})
}
