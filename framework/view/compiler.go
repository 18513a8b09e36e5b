package view

import (
	"fmt"
	"regexp"
	"strings"
)

// The compiler turns a small set of Blade directives into html/template
// actions. Everything else in a view is plain Go template syntax.
//
//	@extends('layouts.app')          the view fills the sections of a layout
//	@section('title', 'Home')        inline section
//	@section('content') … @endsection
//	@yield('content')                placeholder filled by a child section
//	@yield('title', 'Default')       placeholder with default text
//	@include('partials.nav')         renders another view with the same data
//	{{-- comment --}}                removed

var (
	reComment       = regexp.MustCompile(`(?s)\{\{--.*?--\}\}`)
	reExtends       = regexp.MustCompile(`@extends\(\s*['"]([^'"]+)['"]\s*\)[ \t]*\r?\n?`)
	reSectionInline = regexp.MustCompile(`@section\(\s*['"]([^'"]+)['"]\s*,\s*['"]([^'"]*)['"]\s*\)`)
	reSection       = regexp.MustCompile(`@section\(\s*['"]([^'"]+)['"]\s*\)`)
	reEndSection    = regexp.MustCompile(`@endsection\b`)
	reYield         = regexp.MustCompile(`@yield\(\s*['"]([^'"]+)['"]\s*(?:,\s*['"]([^'"]*)['"]\s*)?\)`)
	reInclude       = regexp.MustCompile(`@include\(\s*['"]([^'"]+)['"]\s*\)`)
	reHeader        = regexp.MustCompile(`^\{\{/\* view:(\S*) extends:(\S*) includes:(\S*) \*/\}\}$`)
)

// compiled is the output of compiling one view.
type compiled struct {
	Name     string
	Parent   string
	Includes []string
	Body     string
}

func sectionName(name string) string { return "section:" + name }
func includeName(name string) string { return "include:" + name }
func viewName(name string) string    { return "view:" + name }

// compile translates source into template text.
func compile(name, source string) (*compiled, error) {
	out := &compiled{Name: name}
	src := reComment.ReplaceAllString(source, "")

	if m := reExtends.FindAllStringSubmatch(src, -1); len(m) > 1 {
		return nil, fmt.Errorf("view [%s]: @extends used more than once", name)
	} else if len(m) == 1 {
		out.Parent = normalize(m[0][1])
		src = reExtends.ReplaceAllString(src, "")
	}

	opened := len(reSection.FindAllStringIndex(src, -1))
	closed := len(reEndSection.FindAllStringIndex(src, -1))
	if opened != closed {
		return nil, fmt.Errorf("view [%s]: %d @section but %d @endsection", name, opened, closed)
	}

	src = reSectionInline.ReplaceAllStringFunc(src, func(m string) string {
		g := reSectionInline.FindStringSubmatch(m)
		return fmt.Sprintf(`{{define %q}}%s{{end}}`, sectionName(g[1]), g[2])
	})
	src = reSection.ReplaceAllStringFunc(src, func(m string) string {
		return fmt.Sprintf(`{{define %q}}`, sectionName(reSection.FindStringSubmatch(m)[1]))
	})
	src = reEndSection.ReplaceAllString(src, `{{end}}`)
	src = reYield.ReplaceAllStringFunc(src, func(m string) string {
		g := reYield.FindStringSubmatch(m)
		return fmt.Sprintf(`{{block %q .}}%s{{end}}`, sectionName(g[1]), g[2])
	})

	seen := map[string]bool{}
	src = reInclude.ReplaceAllStringFunc(src, func(m string) string {
		inc := normalize(reInclude.FindStringSubmatch(m)[1])
		if !seen[inc] {
			seen[inc] = true
			out.Includes = append(out.Includes, inc)
		}
		return fmt.Sprintf(`{{template %q .}}`, includeName(inc))
	})

	out.Body = src
	return out, nil
}

// encode writes the compiled view with a one-line header so a compiled file
// can be reused without the source.
func (c *compiled) encode() string {
	return fmt.Sprintf("{{/* view:%s extends:%s includes:%s */}}\n%s",
		c.Name, c.Parent, strings.Join(c.Includes, ","), c.Body)
}

func decode(text string) (*compiled, error) {
	header, body, _ := strings.Cut(text, "\n")
	m := reHeader.FindStringSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("view: compiled file has no header")
	}
	out := &compiled{Name: m[1], Parent: m[2], Body: body}
	if m[3] != "" {
		out.Includes = strings.Split(m[3], ",")
	}
	return out, nil
}

// normalize maps "layouts/app" and "layouts.app" to "layouts.app".
func normalize(name string) string {
	return strings.Trim(strings.ReplaceAll(name, "/", "."), ".")
}
