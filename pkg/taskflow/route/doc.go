/*
Package route selects branches of a task flow with expressions.

A branch point normally continues with its first successor. route lets a
step pick another branch from data instead of code, using the expr-lang
expression language.

# Case routing

A Router evaluates boolean cases in order; the first true case names the
next task:

	r, err := route.Compile(
	    route.Case{When: "payload.Total > 1000", Then: "manual_review"},
	    route.Case{When: "payload.Country != 'US'", Then: "export"},
	)
	flow.RegisterTask("classify", route.Step(r, classify))

When no case matches, the default successor is kept.

# Index routing

A Selector evaluates an integer expression and picks that successor:

	s, err := route.CompileIndex("payload.Choice % len(successors)")
	flow.RegisterTask("pick", route.IndexStep(s, nil))

# Environment

Expressions see the variables built by Env:

	task        name of the running task
	successors  its successors, in branch order
	run_id      run identifier
	payload     the payload returned by the wrapped step

Undefined variables evaluate to nil rather than failing.
*/
package route
