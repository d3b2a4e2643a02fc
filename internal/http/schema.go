package httpx

import (
	"fmt"
	"sort"
)

// fieldRule constrains one string field of a request body. Length bounds of
// zero are unbounded.
type fieldRule struct {
	required  bool
	minLength int
	maxLength int
}

// schema is a static field-constraint table for one operation. Handlers
// declare their schema once; any violation maps to the same validation
// failure regardless of which field broke.
type schema map[string]fieldRule

// check validates values against the schema and returns the violations.
// Optional fields that are absent (empty) pass without length checks.
func (s schema) check(values map[string]string) []string {
	var violations []string
	for field, rule := range s {
		value := values[field]
		if value == "" {
			if rule.required {
				violations = append(violations, field+" is required")
			}
			continue
		}
		if rule.minLength > 0 && len(value) < rule.minLength {
			violations = append(violations, fmt.Sprintf("%s shorter than %d", field, rule.minLength))
		}
		if rule.maxLength > 0 && len(value) > rule.maxLength {
			violations = append(violations, fmt.Sprintf("%s longer than %d", field, rule.maxLength))
		}
	}
	sort.Strings(violations)
	return violations
}

// Per-operation constraint tables. Usernames, display names and secrets are
// all capped at 40 characters on the wire.
var (
	anonymousSchema = schema{
		"name": {required: true, minLength: 1, maxLength: 40},
	}
	registerSchema = schema{
		"username":      {required: true, minLength: 1, maxLength: 40},
		"name":          {required: true, minLength: 1, maxLength: 40},
		"linked":        {minLength: 1, maxLength: 40},
		"linkedSecret":  {minLength: 1, maxLength: 40},
		"controlSecret": {minLength: 1, maxLength: 40},
	}
	updateSchema = schema{
		"username":    {required: true, minLength: 1, maxLength: 40},
		"secret":      {required: true, minLength: 1, maxLength: 40},
		"name":        {minLength: 1, maxLength: 40},
		"newUsername": {minLength: 1, maxLength: 40},
	}
)
