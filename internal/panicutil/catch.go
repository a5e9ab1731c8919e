package panicutil

import (
	"github.com/sourcegraph/conc/panics"
)

// Catch runs the function and returns its error.
// If the function panics, the recovered value is returned as *panics.ErrRecovered instead.
func Catch(f func() error) error {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() {
		err = f()
	})
	if r := pc.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}
