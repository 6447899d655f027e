package tmpl

import (
	"bytes"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
}

// Render executes the template text against data. Referencing a missing map key is an error.
func Render(name, text string, data interface{}) (string, error) {
	tpl := template.New(name).Option("missingkey=error").Funcs(funcs)
	tpl, err := tpl.Parse(text)
	if err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	if err := tpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Validate parses text without executing it.
func Validate(name, text string) error {
	_, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(text)
	return err
}
