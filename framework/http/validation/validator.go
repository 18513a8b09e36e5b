package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// ── Errors ───────────────────────────────────────────────────────────────────

// Errors holds validation errors.
// JSON output: {"errors": {"field": ["msg1", "msg2"]}}
type Errors struct {
	Bag map[string][]string `json:"errors"`
}

func (e *Errors) add(field, msg string) {
	if e.Bag == nil {
		e.Bag = make(map[string][]string)
	}
	e.Bag[field] = append(e.Bag[field], msg)
}

// Has returns true if there are any errors.
func (e *Errors) Has() bool { return len(e.Bag) > 0 }

// First returns the first error for a field.
func (e *Errors) First(field string) string {
	if msgs, ok := e.Bag[field]; ok && len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Fields returns the failing field names in sorted order.
func (e *Errors) Fields() []string {
	out := make([]string, 0, len(e.Bag))
	for f := range e.Bag {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Error implements error so a failed validation can be returned from a handler.
func (e *Errors) Error() string {
	fields := e.Fields()
	if len(fields) == 0 {
		return "validation passed"
	}
	return fmt.Sprintf("validation failed: %s", e.First(fields[0]))
}

// ── Rule registry ────────────────────────────────────────────────────────────

// Check reports whether value passes a rule. data is the full input, param the
// text after the colon in "rule:param".
type Check func(data map[string]string, field, value, param string) bool

type definition struct {
	check   Check
	message string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]definition{}

	alphaRe     = regexp.MustCompile(`^[a-zA-Z]+$`)
	alphaNumRe  = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	alphaDashRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	regexCache  sync.Map // pattern → *regexp.Regexp
)

// Extend registers a custom rule. message may use :attribute, :param and, for
// two-part parameters, :min and :max.
//
//	validation.Extend("uppercase", func(_ map[string]string, _, v, _ string) bool {
//	    return v == strings.ToUpper(v)
//	}, "The :attribute must be uppercase.")
func Extend(name string, check Check, message string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = definition{check: check, message: message}
}

func lookup(name string) (definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	return d, ok
}

func init() {
	Extend("required", func(_ map[string]string, _, v, _ string) bool {
		return strings.TrimSpace(v) != ""
	}, "The :attribute field is required.")
	Extend("string", func(_ map[string]string, _, _, _ string) bool { return true }, "")
	Extend("numeric", func(_ map[string]string, _, v, _ string) bool {
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	}, "The :attribute must be a number.")
	Extend("integer", func(_ map[string]string, _, v, _ string) bool {
		_, err := strconv.Atoi(v)
		return err == nil
	}, "The :attribute must be an integer.")
	Extend("boolean", func(_ map[string]string, _, v, _ string) bool {
		switch strings.ToLower(v) {
		case "true", "false", "1", "0", "yes", "no":
			return true
		}
		return false
	}, "The :attribute field must be true or false.")
	Extend("email", func(_ map[string]string, _, v, _ string) bool {
		_, err := mail.ParseAddress(v)
		return err == nil
	}, "The :attribute must be a valid email address.")
	Extend("url", func(_ map[string]string, _, v, _ string) bool {
		u, err := url.Parse(v)
		return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	}, "The :attribute must be a valid URL.")
	Extend("min", func(_ map[string]string, _, v, p string) bool {
		return utf8.RuneCountInString(v) >= atoi(p)
	}, "The :attribute must be at least :param characters.")
	Extend("max", func(_ map[string]string, _, v, p string) bool {
		return utf8.RuneCountInString(v) <= atoi(p)
	}, "The :attribute may not be greater than :param characters.")
	Extend("size", func(_ map[string]string, _, v, p string) bool {
		return utf8.RuneCountInString(v) == atoi(p)
	}, "The :attribute must be :param characters.")
	Extend("between", func(_ map[string]string, _, v, p string) bool {
		lo, hi, ok := strings.Cut(p, ",")
		if !ok {
			return true
		}
		n := utf8.RuneCountInString(v)
		return n >= atoi(lo) && n <= atoi(hi)
	}, "The :attribute must be between :min and :max characters.")
	Extend("in", func(_ map[string]string, _, v, p string) bool {
		return contains(p, v)
	}, "The selected :attribute is invalid.")
	Extend("not_in", func(_ map[string]string, _, v, p string) bool {
		return !contains(p, v)
	}, "The selected :attribute is invalid.")
	Extend("confirmed", func(d map[string]string, f, v, _ string) bool {
		return d[f+"_confirmation"] == v
	}, "The :attribute confirmation does not match.")
	Extend("same", func(d map[string]string, _, v, p string) bool {
		return d[p] == v
	}, "The :attribute and :param must match.")
	Extend("different", func(d map[string]string, _, v, p string) bool {
		return d[p] != v
	}, "The :attribute and :param must be different.")
	Extend("alpha", func(_ map[string]string, _, v, _ string) bool {
		return alphaRe.MatchString(v)
	}, "The :attribute may only contain letters.")
	Extend("alpha_num", func(_ map[string]string, _, v, _ string) bool {
		return alphaNumRe.MatchString(v)
	}, "The :attribute may only contain letters and numbers.")
	Extend("alpha_dash", func(_ map[string]string, _, v, _ string) bool {
		return alphaDashRe.MatchString(v)
	}, "The :attribute may only contain letters, numbers, dashes and underscores.")
	Extend("regex", func(_ map[string]string, _, v, p string) bool {
		re, err := compiled(p)
		return err == nil && re.MatchString(v)
	}, "The :attribute format is invalid.")
	Extend("gt", compare(func(a, b float64) bool { return a > b }), "The :attribute must be greater than :param.")
	Extend("gte", compare(func(a, b float64) bool { return a >= b }), "The :attribute must be greater than or equal to :param.")
	Extend("lt", compare(func(a, b float64) bool { return a < b }), "The :attribute must be less than :param.")
	Extend("lte", compare(func(a, b float64) bool { return a <= b }), "The :attribute must be less than or equal to :param.")
}

// ── Validator ────────────────────────────────────────────────────────────────

// Rules is a map of field → pipe-separated rule string.
// e.g. Rules{"email": "required|email", "age": "required|numeric|min:18"}
type Rules map[string]string

// Validator validates a flat map of input values.
type Validator struct {
	data   map[string]string
	rules  Rules
	errors *Errors
	ran    bool
}

// Make creates a new Validator.
func Make(data map[string]string, rules Rules) *Validator {
	return &Validator{
		data:   data,
		rules:  rules,
		errors: &Errors{},
	}
}

// Fails runs validation and returns true if any rule fails.
func (v *Validator) Fails() bool {
	v.validate()
	return v.errors.Has()
}

// Passes runs validation and returns true if all rules pass.
func (v *Validator) Passes() bool { return !v.Fails() }

// Errors returns the validation error bag.
func (v *Validator) Errors() *Errors { return v.errors }

// Validate returns the validated fields, or the error bag when a rule fails.
func (v *Validator) Validate() (map[string]string, error) {
	if v.Fails() {
		return nil, v.errors
	}
	out := make(map[string]string, len(v.rules))
	for field := range v.rules {
		if val, ok := v.data[field]; ok {
			out[field] = val
		}
	}
	return out, nil
}

// validate runs once; fields are processed in sorted order and each field
// stops at its first failing rule.
func (v *Validator) validate() {
	if v.ran {
		return
	}
	v.ran = true

	fields := make([]string, 0, len(v.rules))
	for f := range v.rules {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value, present := v.data[field]
		rules := splitRules(v.rules[field])

		if has(rules, "sometimes") && !present {
			continue
		}
		if has(rules, "nullable") && value == "" {
			continue
		}

		for _, rule := range rules {
			name, param, _ := strings.Cut(rule, ":")
			if name == "sometimes" || name == "nullable" {
				continue
			}
			def, ok := lookup(name)
			if !ok {
				v.errors.add(field, fmt.Sprintf("Unknown validation rule [%s].", name))
				break
			}
			if !def.check(v.data, field, value, param) {
				v.errors.add(field, format(def.message, field, param))
				break
			}
		}
	}
}

// ── helpers ──────────────────────────────────────────────────────────────────

func splitRules(s string) []string {
	parts := strings.Split(s, "|")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func has(rules []string, name string) bool {
	for _, r := range rules {
		if r == name {
			return true
		}
	}
	return false
}

func format(msg, field, param string) string {
	lo, hi, _ := strings.Cut(param, ",")
	return strings.NewReplacer(
		":attribute", field,
		":param", param,
		":min", strings.TrimSpace(lo),
		":max", strings.TrimSpace(hi),
	).Replace(msg)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func contains(list, value string) bool {
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == value {
			return true
		}
	}
	return false
}

func compare(op func(a, b float64) bool) Check {
	return func(_ map[string]string, _, v, p string) bool {
		a, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		b, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return false
		}
		return op(a, b)
	}
}

func compiled(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}
