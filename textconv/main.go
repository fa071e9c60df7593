// Command textconv formats a mosque index in a human-readable way suitable for
// use with "git diff". The output may not be stable across versions.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/template"

	"github.com/lutonsalah/jummah/schema"
	"github.com/mitchellh/go-wordwrap"
)

var tmpl = template.Must(template.New("").Funcs(template.FuncMap{
	"wrap": func(n uint, s string) string {
		return wordwrap.WrapString(s, n)
	},
	"clock": func(s string) string {
		if t, ok := schema.ParseClockTime(s); ok {
			return t.Format(false)
		}
		return strconv.Quote(s)
	},
}).Parse(`
{{- "updated " }}{{ .LastUpdated }}

{{- range $mi, $m := .Mosques }}
{{- "\n\n======\n\n" -}}

{{ $m.Name | wrap 100 }}
{{"  "}}{{ $m.Slug }} {{ $m.DataFile }}
{{- if not $m.HasData }}
{{"  "}}NO DATA ({{ $m.Slug }})
{{- end }}

{{- with $m.JummahSchedule }}
{{"\n+ "}}JUMMAH ({{ $m.Slug }})
{{- range . }}
{{"  ~ "}}[{{ .Date }}]
{{- range $ti, $t := .Times }} {{ clock $t }}{{ end }} ({{ $m.Slug }})
{{- end }}
{{- end }}

{{- end }}
`))

func main() {
	input := os.Stdin
	if len(os.Args) > 1 {
		f, err := os.Open(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}
	if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "error: too many arguments\n")
		os.Exit(1)
	}

	if err := render(os.Stdout, input); err != nil {
		fmt.Println()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func render(w io.Writer, r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	idx, err := schema.DecodeIndex(buf)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, idx)
}
