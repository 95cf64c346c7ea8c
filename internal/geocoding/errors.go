package geocoding

import "fmt"

// ConfigError is a misconfiguration detected before any row is processed.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return "config: " + e.Msg + ": " + e.Err.Error()
	}
	return "config: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// HaltError stops a run. Key and Query identify the row that triggered it;
// every row before it is already committed.
type HaltError struct {
	Key   any
	Query string
	Err   error
}

func (e *HaltError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("engine: halted at row %v (query %q): %v", e.Key, e.Query, e.Err)
	}
	return fmt.Sprintf("engine: halted at row %v: %v", e.Key, e.Err)
}

func (e *HaltError) Unwrap() error { return e.Err }
