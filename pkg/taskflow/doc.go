// Package taskflow declares and runs task flows: named, directed graphs of
// steps executed one at a time against a caller payload.
//
// A flow is built with a fluent builder:
//
//	flow := taskflow.NewFlow[*Order]().
//	    RegisterTasks(tasks...).
//	    StartWith("validate").
//	    FollowedBy("price").
//	    ConditionalFlow(
//	        taskflow.NewFlow[*Order]().StartWith("ship").FollowedBy("notify"),
//	        taskflow.NewFlow[*Order]().StartWith("refund"),
//	    ).
//	    AddHandledExceptionTasks("manual_review")
//	flow.AddUnhandledExceptionTask(alertOps)
//
// Each task's successors are ordered; the first is the default. A step picks
// another successor, or escapes to a handled-exception task, with
// ctx.SetNextTask. A step that returns an error (or panics) sends the run to
// the unhandled-exception task once; a second failure ends the run.
//
// Runs report progress through Listeners:
//
//	history := taskflow.NewHistory()
//	out := flow.Run(ctx, order, taskflow.WithListener(history))
//
// Run never returns an error. Inspect history.Errors() for the cause of a
// stopped run.
//
// Runs can be journaled (WithJournal) and resumed after a crash with Resume.
// DOT and Mermaid describe the flow for diagrams; DrawDiagram hands the DOT
// source to a Renderer such as render.Graphviz.
package taskflow
