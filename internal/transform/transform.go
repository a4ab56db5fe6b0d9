// =============================================================================
// ASYCUDA Export - Row Transformation Engine
// =============================================================================
//
// Cleans raw sales-report values before they are mapped onto declaration
// items. Rules are configured per field in the mapping configuration and
// run in the order they are declared; the actions of a rule run in order too.
//
// TRANSFORMATION TYPES:
//   - String manipulation (prepend, append, trim, case conversion)
//   - Replacement (literal and regular expression)
//   - Code clean-up (extract digits, pad zeros, strip special characters)
//   - Lookup tables and defaults
//
// EXAMPLE (mapping.yaml):
//
//   transformation_rules:
//     - field: hs_code
//       actions:
//         - type: extract_digits
//         - type: pad_zeros_to_length
//           value: "8"
//     - field: currency
//       actions:
//         - type: uppercase
//         - type: if_empty_use_default
//           value: USD
//
// Rules are compiled once by New. Unknown action types and bad regular
// expressions are configuration errors, not row errors.
//
// =============================================================================

package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Action is a single transformation step.
type Action struct {
	// Type names the transformation, e.g. "trim" or "regex_replace".
	Type string `yaml:"type" json:"type" validate:"required"`

	// Value is the argument of the action: the string to prepend, the
	// replacement text, the target length or the default value.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`

	// Find is the substring or pattern searched by replace actions.
	Find string `yaml:"find,omitempty" json:"find,omitempty"`

	// LookupTable maps input values to replacements for lookup actions.
	LookupTable map[string]string `yaml:"lookup_table,omitempty" json:"lookup_table,omitempty"`
}

// Rule binds a chain of actions to one input field.
type Rule struct {
	Field   string   `yaml:"field" json:"field" validate:"required"`
	Actions []Action `yaml:"actions" json:"actions" validate:"required,min=1,dive"`
}

// =============================================================================
// TRANSFORMER
// =============================================================================

type step struct {
	action Action
	re     *regexp.Regexp
	n      int
}

type compiledRule struct {
	field string
	steps []step
}

// Transformer applies compiled rules to rows. It is safe for concurrent use.
type Transformer struct {
	rules []compiledRule
}

var (
	digitsRe     = regexp.MustCompile(`\d+`)
	lettersRe    = regexp.MustCompile(`[a-zA-Z]+`)
	specialRe    = regexp.MustCompile(`[^a-zA-Z0-9]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// New compiles rules.
//
// RETURNS:
//   - A Transformer ready for use
//   - An error naming the rule and action that could not be compiled
func New(rules []Rule) (*Transformer, error) {
	t := &Transformer{}
	for i, r := range rules {
		cr := compiledRule{field: r.Field}
		for j, a := range r.Actions {
			s, err := compile(a)
			if err != nil {
				return nil, fmt.Errorf("transformation_rules[%d] (%s) action %d: %w", i, r.Field, j, err)
			}
			cr.steps = append(cr.steps, s)
		}
		t.rules = append(t.rules, cr)
	}
	return t, nil
}

func compile(a Action) (step, error) {
	s := step{action: a}
	switch a.Type {
	case "prepend_string", "append_string", "trim", "trim_left", "trim_right",
		"uppercase", "lowercase", "replace", "remove_leading_zeros",
		"lookup", "lookup_with_default", "if_empty_use_default", "if_empty_use_field",
		"extract_digits", "extract_letters", "remove_special_chars", "normalize_whitespace":
		return s, nil

	case "regex_replace":
		re, err := regexp.Compile(a.Find)
		if err != nil {
			return s, fmt.Errorf("invalid regex pattern: %w", err)
		}
		s.re = re
		return s, nil

	case "pad_zeros_to_length", "truncate_to_length":
		n, err := strconv.Atoi(a.Value)
		if err != nil || n <= 0 {
			return s, fmt.Errorf("%s needs a positive length, got %q", a.Type, a.Value)
		}
		s.n = n
		return s, nil

	default:
		return s, fmt.Errorf("unknown transformation type: %s", a.Type)
	}
}

// Apply runs every rule against fields and returns a new map; fields is not
// modified. Rules see the output of earlier rules, so a later rule may copy
// a field an earlier rule already cleaned.
func (t *Transformer) Apply(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	if t == nil {
		return out
	}
	for _, r := range t.rules {
		value := out[r.field]
		for _, s := range r.steps {
			value = s.apply(value, out)
		}
		out[r.field] = value
	}
	return out
}

// Len returns the number of rules.
func (t *Transformer) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// =============================================================================
// ACTIONS
// =============================================================================

func (s step) apply(value string, fields map[string]string) string {
	a := s.action
	switch a.Type {

	// =========================================================================
	// STRING MANIPULATIONS
	// =========================================================================

	case "prepend_string":
		return a.Value + value

	case "append_string":
		return value + a.Value

	case "trim":
		return strings.TrimSpace(value)

	case "trim_left":
		if a.Value != "" {
			return strings.TrimLeft(value, a.Value)
		}
		return strings.TrimLeft(value, " \t\n\r")

	case "trim_right":
		if a.Value != "" {
			return strings.TrimRight(value, a.Value)
		}
		return strings.TrimRight(value, " \t\n\r")

	case "uppercase":
		return strings.ToUpper(value)

	case "lowercase":
		return strings.ToLower(value)

	case "replace":
		// EXAMPLE: "Polo | Navy" with find "|" and value "/" -> "Polo / Navy"
		if a.Find == "" {
			return value
		}
		return strings.ReplaceAll(value, a.Find, a.Value)

	case "regex_replace":
		return s.re.ReplaceAllString(value, a.Value)

	// =========================================================================
	// CODE CLEAN-UP
	// =========================================================================

	case "pad_zeros_to_length":
		// EXAMPLE: "6504000" with value "8" -> "06504000"
		if len(value) >= s.n {
			return value
		}
		return strings.Repeat("0", s.n-len(value)) + value

	case "truncate_to_length":
		r := []rune(value)
		if len(r) > s.n {
			return string(r[:s.n])
		}
		return value

	case "remove_leading_zeros":
		result := strings.TrimLeft(value, "0")
		if result == "" && value != "" {
			return "0"
		}
		return result

	case "extract_digits":
		// EXAMPLE: "7117.90.00" -> "71179000"
		return strings.Join(digitsRe.FindAllString(value, -1), "")

	case "extract_letters":
		return strings.Join(lettersRe.FindAllString(value, -1), "")

	case "remove_special_chars":
		return specialRe.ReplaceAllString(value, "")

	case "normalize_whitespace":
		return strings.TrimSpace(whitespaceRe.ReplaceAllString(value, " "))

	// =========================================================================
	// LOOKUPS AND DEFAULTS
	// =========================================================================

	case "lookup":
		if replacement, ok := a.LookupTable[value]; ok {
			return replacement
		}
		return value

	case "lookup_with_default":
		if replacement, ok := a.LookupTable[value]; ok {
			return replacement
		}
		return a.Value

	case "if_empty_use_default":
		if strings.TrimSpace(value) == "" {
			return a.Value
		}
		return value

	case "if_empty_use_field":
		if strings.TrimSpace(value) == "" {
			if other, ok := fields[a.Value]; ok {
				return other
			}
		}
		return value
	}
	return value
}
