package testutil

import "testing"

// Step is one stage of a scenario test.
type Step func(t *testing.T)

// Given, When, Then and And run a step as a named subtest. They report
// whether the step passed so a scenario can stop at the first broken stage:
//
//	if !testutil.Given(t, "a trust with two beneficiaries", setup) {
//		return
//	}
func Given(t *testing.T, desc string, fn Step) bool {
	t.Helper()
	return t.Run("given "+desc, fn)
}

func When(t *testing.T, desc string, fn Step) bool {
	t.Helper()
	return t.Run("when "+desc, fn)
}

func Then(t *testing.T, desc string, fn Step) bool {
	t.Helper()
	return t.Run("then "+desc, fn)
}

func And(t *testing.T, desc string, fn Step) bool {
	t.Helper()
	return t.Run("and "+desc, fn)
}
