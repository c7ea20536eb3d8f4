package types

const redactedPlaceholder = "***REDACTED***"

// SecretString holds credentials loaded from configuration. It prints and
// marshals as a placeholder so secrets never reach logs or config dumps.
type SecretString string

// String returns the redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON encodes the redacted placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// Unmask returns the raw value. Call sites should be limited to the point of
// use (HTTP auth headers, JWT key material, DSNs).
func (s SecretString) Unmask() string {
	return string(s)
}
