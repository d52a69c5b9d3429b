package v2

// Config holds configuration for creating a logger instance
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string

	// Format is text or json.
	Format string

	// Output is "stdout", "stderr" or a file path.
	Output string

	// FilePath, when set, tees every entry into this file as well.
	FilePath string
}

// DefaultConfig returns the configuration used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}
}
