// Package validation checks flat string input against pipe-separated rules.
//
//	v := validation.Make(map[string]string{
//	    "name":  "Alice",
//	    "email": "alice@example.com",
//	}, validation.Rules{
//	    "name":  "required|min:2|max:100",
//	    "email": "required|email",
//	})
//	if v.Fails() {
//	    res.ValidationError(v.Errors()) // 422 {"errors": {"field": ["message"]}}
//	}
//
// Fields are checked in sorted order and each field stops at its first
// failing rule. "nullable" skips a field whose value is empty; "sometimes"
// skips a field that is absent from the input.
//
// Built-in rules: required, string, numeric, integer, boolean, email, url,
// min:n, max:n, size:n, between:a,b, in:a,b, not_in:a,b, confirmed, same:f,
// different:f, alpha, alpha_num, alpha_dash, regex:pattern, gt:n, gte:n,
// lt:n, lte:n. Register more with Extend.
package validation
