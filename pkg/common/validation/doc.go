// Package validation provides the checks stagehand constructors and
// configuration loaders run before accepting a value.
//
// Every helper returns a *errors.ValidationError naming the module and
// field, so callers can surface one consistent message format.
package validation
