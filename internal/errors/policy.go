package errors

import (
	"fmt"
	"os"
)

// Policy decides what happens to a fatal allocator error once it has been reported.
type Policy int

const (
	// PolicyPropagate returns the fatal error to the caller.
	PolicyPropagate Policy = iota
	// PolicyPanic panics with the error.
	PolicyPanic
	// PolicyExit terminates the process with exit status 1.
	PolicyExit
)

func (p Policy) String() string {
	switch p {
	case PolicyPropagate:
		return "propagate"
	case PolicyPanic:
		return "panic"
	case PolicyExit:
		return "exit"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a config string into a Policy
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "propagate", "":
		return PolicyPropagate, nil
	case "panic":
		return PolicyPanic, nil
	case "exit", "abort":
		return PolicyExit, nil
	default:
		return PolicyPropagate, fmt.Errorf("invalid fatal policy: %s", s)
	}
}

// exitFunc is swapped in tests.
var exitFunc = os.Exit

// Handle applies the policy to err. Non-fatal errors and nil pass through
// untouched. Under PolicyPropagate a fatal error is returned as is; the other
// policies do not return.
func (p Policy) Handle(err error) error {
	if err == nil || !IsFatal(err) {
		return err
	}
	switch p {
	case PolicyPanic:
		panic(err)
	case PolicyExit:
		exitFunc(1)
		// exitFunc may be stubbed; never continue silently.
		panic(err)
	}
	return err
}
