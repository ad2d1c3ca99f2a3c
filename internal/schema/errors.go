package schema

import "fmt"

// InvalidSchemaURLError reports a schema $id that does not follow the
// <base>/<high_level>/<domain>/<version>/<module> convention.
type InvalidSchemaURLError struct {
	URL    string
	Reason string
}

// Error implements the error interface
func (e *InvalidSchemaURLError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid schema url %q: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("invalid schema url %q", e.URL)
}

// UnknownKeyError reports a lookup miss against the template catalog.
type UnknownKeyError struct {
	Key string
}

// Error implements the error interface
func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown key %q", e.Key)
}

// RootSchemaError reports a failure to fetch or interpret a root schema
// document.
type RootSchemaError struct {
	URL string
	Err error
}

// Error implements the error interface
func (e *RootSchemaError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("root schema %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("root schema: %v", e.Err)
}

// Unwrap returns the underlying cause
func (e *RootSchemaError) Unwrap() error {
	return e.Err
}
