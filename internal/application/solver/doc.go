// Package solver walks a quiz chain: it renders each quiz page, gathers
// attachment context, asks the LLM for an answer, submits it and follows
// the next URL the quiz server returns until the chain ends or the time
// budget runs out.
//
// Wrong answers are retried on the same page with the previous answer and
// the server's reason added to the prompt. Every submission is reported
// through a ProgressFunc so callers can persist it.
package solver
