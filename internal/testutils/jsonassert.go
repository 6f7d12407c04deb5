package testutils

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// AnyValue in expected JSON matches whatever the actual document holds at that key,
// as long as the key is present.
const AnyValue = "<<ANY>>"

// JSONOptions control JSON comparison.
type JSONOptions struct {
	IgnoreExtraKeys  bool `default:"true"`
	IgnoreArrayOrder bool `default:"false"`
	IgnoredFields    []string
}

// JSONOption mutates JSONOptions.
type JSONOption func(*JSONOptions)

// WithStrictKeys reports keys present only in the actual document.
func WithStrictKeys() JSONOption {
	return func(o *JSONOptions) { o.IgnoreExtraKeys = false }
}

// WithIgnoreArrayOrder compares arrays as multisets.
func WithIgnoreArrayOrder() JSONOption {
	return func(o *JSONOptions) { o.IgnoreArrayOrder = true }
}

// WithIgnoredFields drops the named keys at every depth on both sides.
func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONOptions) { o.IgnoredFields = append(o.IgnoredFields, fields...) }
}

// JSONAsserter compares JSON documents structurally and prints a gojsondiff on mismatch.
type JSONAsserter struct {
	t    TestingT
	opts JSONOptions
}

// NewJSONAsserter creates an asserter with default options.
func NewJSONAsserter(t TestingT, opts ...JSONOption) *JSONAsserter {
	var o JSONOptions
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	return &JSONAsserter{t: t, opts: o}
}

// Assert fails the test when the documents differ.
func (a *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	a.t.Helper()
	if diff := a.Diff(actualJSON, expectedJSON); diff != "" {
		a.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

// Diff returns a readable difference, or "" when the documents match.
func (a *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var expected, actual any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only
	expected = map[string]any{"root": expected}
	actual = map[string]any{"root": actual}

	resolveAny(expected, actual)
	if len(a.opts.IgnoredFields) > 0 {
		dropFields(expected, a.opts.IgnoredFields)
		dropFields(actual, a.opts.IgnoredFields)
	}
	if a.opts.IgnoreArrayOrder {
		sortArrays(expected)
		sortArrays(actual)
	}
	if a.opts.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)

	diff, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, err := f.Format(diff)
	if err != nil {
		return fmt.Sprintf("JSON documents differ (formatting failed: %v)", err)
	}
	return out
}

// resolveAny copies actual values over AnyValue placeholders whose key exists in actual.
func resolveAny(expected, actual any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k, v := range exp {
			actVal, present := act[k]
			if s, isStr := v.(string); isStr && s == AnyValue {
				if present {
					exp[k] = actVal
				}
				continue
			}
			resolveAny(v, actVal)
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i >= len(act) {
				return
			}
			if s, isStr := exp[i].(string); isStr && s == AnyValue {
				exp[i] = act[i]
				continue
			}
			resolveAny(exp[i], act[i])
		}
	}
}

func dropFields(v any, fields []string) {
	switch node := v.(type) {
	case map[string]any:
		for _, f := range fields {
			delete(node, f)
		}
		for _, child := range node {
			dropFields(child, fields)
		}
	case []any:
		for _, child := range node {
			dropFields(child, fields)
		}
	}
}

// pruneExtraKeys removes object keys from actual that expected does not mention.
func pruneExtraKeys(actual, expected any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k := range act {
			if _, keep := exp[k]; !keep {
				delete(act, k)
			}
		}
		for k, v := range exp {
			pruneExtraKeys(act[k], v)
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				pruneExtraKeys(act[i], exp[i])
			}
		}
	}
}

// sortArrays orders every array by the JSON encoding of its elements, children first.
func sortArrays(v any) {
	switch node := v.(type) {
	case map[string]any:
		for _, child := range node {
			sortArrays(child)
		}
	case []any:
		for _, child := range node {
			sortArrays(child)
		}
		sort.SliceStable(node, func(i, j int) bool {
			a, _ := json.Marshal(node[i])
			b, _ := json.Marshal(node[j])
			return string(a) < string(b)
		})
	}
}
