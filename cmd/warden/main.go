// Command warden is a cross-platform process supervisor: it spawns,
// health-gates, restarts, and tears down long-running programs, keeping a
// per-process JSON record on disk as the rendezvous point between the short
// control invocation a user runs and the detached monitor that outlives it.
package main

func main() {
	Execute()
}
