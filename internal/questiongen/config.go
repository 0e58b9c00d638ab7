package questiongen

// Config controls the behavior of the Generator.
type Config struct {
	// Validators run in order on every parsed question after the
	// structural check; the first failure stops the pipeline.
	Validators []Validator

	// MaxTokens is the token budget for each reply. Zero leaves it to
	// the provider.
	MaxTokens int

	// Temperature controls output randomness (0.0-1.0).
	Temperature float64
}

// DefaultConfig returns the standard validator chain and the sampling
// settings the persona prompts were tuned for.
func DefaultConfig() Config {
	return Config{
		Validators:  []Validator{&DistinctAnswersValidator{}},
		MaxTokens:   512,
		Temperature: 0.7,
	}
}
