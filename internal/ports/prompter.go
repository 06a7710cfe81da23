package ports

// Prompter asks the interactive user for values that were not supplied via
// environment variables or the keyring cache.
type Prompter interface {
	// Input asks for a plain-text value.
	Input(title, description string) (string, error)

	// Password asks for a masked value.
	Password(title, description string) ([]byte, error)
}
