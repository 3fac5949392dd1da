/*
Package runner drives poll checks for environments without an external scheduler.

The debounce core never schedules its own timers: a wait outcome only tells the
caller to come back later. Poller is that caller. It resubmits the poll
envelope every interval until the conversation settles, and warns when a
conversation is still open after MaxPolls attempts, which usually means the
wait window is longer than the polling budget.

Runner reads newline-delimited activations, processes them, and writes one JSON
line per outcome. Each conversation with a buffered message gets at most one
polling goroutine; a message that arrives while that goroutine is running just
extends its life.

# Usage

	r := runner.NewRunner(engine,
		runner.WithInterval(time.Second),
		runner.WithConcurrency(32),
	)
	if err := r.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
*/
package runner
