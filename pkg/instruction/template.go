// Copyright 2026 The Reins Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package instruction resolves placeholders in agent instructions from
// session state.
//
// Placeholders use curly braces:
//
//	{variable}        - session state key
//	{app:variable}    - app-scoped state key
//	{user:variable}   - user-scoped state key
//	{temp:variable}   - invocation-scoped state key
//	{variable?}       - optional (empty string when missing, no error)
//
// Example:
//
//	tmpl := "You manage a stock watchlist. Current watchlist: {watchlist?}"
//	resolved, err := instruction.InjectState(sess.State, tmpl)
package instruction

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/reins-ai/reins/pkg/tool"
)

// State key prefixes, matching the session package.
const (
	PrefixApp  = "app:"
	PrefixUser = "user:"
	PrefixTemp = "temp:"
)

// placeholderRegex matches {variable}, {app:variable}, {variable?}, etc.
var placeholderRegex = regexp.MustCompile(`{+[^{}]*}+`)

// InjectState resolves every placeholder in template against state.
//
// A required placeholder whose key is missing fails; a placeholder
// marked optional with ? resolves to the empty string instead. Text in
// braces that is not a valid state name is left as-is, so JSON examples
// inside instructions survive untouched.
func InjectState(state tool.State, template string) (string, error) {
	if template == "" {
		return "", nil
	}

	var result strings.Builder
	lastIndex := 0
	for _, loc := range placeholderRegex.FindAllStringIndex(template, -1) {
		start, end := loc[0], loc[1]
		result.WriteString(template[lastIndex:start])

		replacement, err := replaceMatch(state, template[start:end])
		if err != nil {
			return "", err
		}
		result.WriteString(replacement)

		lastIndex = end
	}
	result.WriteString(template[lastIndex:])
	return result.String(), nil
}

// replaceMatch resolves a single placeholder match.
func replaceMatch(state tool.State, match string) (string, error) {
	varName := strings.TrimSpace(strings.Trim(match, "{}"))

	optional := false
	if strings.HasSuffix(varName, "?") {
		optional = true
		varName = strings.TrimSuffix(varName, "?")
	}

	// Not a state name: treat as literal text.
	if !isValidStateName(varName) {
		return match, nil
	}

	if state == nil {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("state key %q: no state available", varName)
	}

	value, err := state.Get(varName)
	if err != nil {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("state key %q: %w", varName, err)
	}
	return formatValue(value), nil
}

// formatValue renders a state value into instruction text. Slices are
// joined with commas so list-shaped state (a watchlist, for instance)
// reads naturally in a prompt.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// isValidStateName reports whether varName is an identifier, optionally
// behind an app:, user:, or temp: prefix.
func isValidStateName(varName string) bool {
	parts := strings.Split(varName, ":")
	if len(parts) == 1 {
		return isIdentifier(varName)
	}
	if len(parts) == 2 {
		prefix := parts[0] + ":"
		if slices.Contains([]string{PrefixApp, PrefixUser, PrefixTemp}, prefix) {
			return isIdentifier(parts[1])
		}
	}
	return false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
		} else if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// HasPlaceholders reports whether the template contains placeholders.
func HasPlaceholders(template string) bool {
	return placeholderRegex.MatchString(template)
}

// ListPlaceholders returns the distinct placeholder names in template,
// in order of first appearance.
func ListPlaceholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range placeholderRegex.FindAllString(template, -1) {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		name = strings.TrimSuffix(name, "?")
		if !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	return names
}
