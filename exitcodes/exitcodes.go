// Package exitcodes defines the standard exit codes used by op-uat.
package exitcodes

// Exit code constants used by op-uat
//
// * Success (0): every selected scenario passed
// * TestFailure (1): one or more scenarios failed
// * RuntimeErr (2): configuration errors, panics, drain timeouts or other failures
const (
	Success     = 0 // All scenarios pass
	TestFailure = 1 // Scenario failures
	RuntimeErr  = 2 // Runtime errors or timeouts
)

// ForError maps the error returned by a run to a process exit code.
func ForError(err error, isTestFailure func(error) bool) int {
	switch {
	case err == nil:
		return Success
	case isTestFailure != nil && isTestFailure(err):
		return TestFailure
	default:
		return RuntimeErr
	}
}
