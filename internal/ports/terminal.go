package ports

// Terminal abstracts mode control for the local terminal.
type Terminal interface {
	// IsTerminal reports whether stdin is attached to an interactive
	// terminal. Raw mode is skipped for pipes and redirects.
	IsTerminal() bool

	// MakeRaw switches the terminal to raw mode (no line buffering, no
	// local echo), capturing the previous state.
	MakeRaw() error

	// Restore returns the terminal to the state captured by MakeRaw.
	// Safe to call repeatedly and from a signal handler racing normal
	// shutdown.
	Restore() error
}
