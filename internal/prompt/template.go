// Package prompt renders flow inputs into model prompts. Templates use
// text/template syntax; {{media .field}} embeds a data URI as an inline part.
package prompt

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/schema"
)

// Media placeholders are "\x00media:<nonce>:<index>\x00". The nonce is new
// on every render so interpolated text cannot forge one.
const (
	markPrefix = "\x00media:"
	markClose  = "\x00"
)

type Template struct {
	name   string
	body   *template.Template
	system *template.Template
}

type Option func(*options)

type options struct {
	system string
}

// WithSystem adds a system instruction, rendered with the same input.
func WithSystem(text string) Option {
	return func(o *options) { o.system = text }
}

func New(name, body string, opts ...Option) (*Template, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	bt, err := parse(name, body)
	if err != nil {
		return nil, err
	}
	t := &Template{name: name, body: bt}
	if strings.TrimSpace(o.system) != "" {
		st, err := parse(name+".system", o.system)
		if err != nil {
			return nil, err
		}
		t.system = st
	}
	return t, nil
}

// MustNew panics on a parse error. Use it for templates fixed at compile time.
func MustNew(name, body string, opts ...Option) *Template {
	t, err := New(name, body, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(baseFuncs(nil, markPrefix)).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return t, nil
}

func (t *Template) Name() string { return t.name }

type Rendered struct {
	System string
	Parts  []engine.Part
}

// Text joins the text parts, skipping media.
func (r Rendered) Text() string {
	var b strings.Builder
	for _, p := range r.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func (r Rendered) HasMedia() bool {
	for _, p := range r.Parts {
		if p.Media != nil {
			return true
		}
	}
	return false
}

// Render executes the template against input. Output depends only on input.
func (t *Template) Render(input map[string]any) (Rendered, error) {
	var out Rendered
	if t.system != nil {
		sys, media, err := execute(t.system, input, markPrefix)
		if err != nil {
			return Rendered{}, err
		}
		if len(media) > 0 {
			return Rendered{}, fmt.Errorf("render %s: media is not allowed in system instructions", t.name)
		}
		out.System = strings.TrimSpace(sys)
	}

	open := markPrefix + uuid.NewString() + ":"
	text, media, err := execute(t.body, input, open)
	if err != nil {
		return Rendered{}, err
	}
	out.Parts = split(strings.TrimSpace(text), media, open)
	if len(out.Parts) == 0 {
		return Rendered{}, fmt.Errorf("render %s: empty prompt", t.name)
	}
	return out, nil
}

func execute(tmpl *template.Template, input map[string]any, open string) (string, []*engine.Media, error) {
	var media []*engine.Media
	clone, err := tmpl.Clone()
	if err != nil {
		return "", nil, err
	}
	clone.Funcs(baseFuncs(&media, open))
	var buf bytes.Buffer
	if err := clone.Execute(&buf, input); err != nil {
		return "", nil, fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), media, nil
}

// split turns the marker-bearing output into ordered parts.
func split(text string, media []*engine.Media, open string) []engine.Part {
	var parts []engine.Part
	for {
		i := strings.Index(text, open)
		if i < 0 {
			break
		}
		rest := text[i+len(open):]
		j := strings.Index(rest, markClose)
		if j < 0 {
			break
		}
		idx, err := strconv.Atoi(rest[:j])
		if err != nil || idx < 0 || idx >= len(media) {
			break
		}
		if i > 0 {
			parts = append(parts, engine.TextPart(text[:i]))
		}
		parts = append(parts, engine.Part{Media: media[idx]})
		text = rest[j+len(markClose):]
	}
	if text != "" {
		parts = append(parts, engine.TextPart(text))
	}
	return parts
}

func baseFuncs(media *[]*engine.Media, open string) template.FuncMap {
	return template.FuncMap{
		"media": func(v any) (string, error) {
			s, ok := v.(string)
			if !ok {
				return "", fmt.Errorf("media expects a data URI string, got %T", v)
			}
			d, err := schema.ParseDataURI(s)
			if err != nil {
				return "", err
			}
			if media == nil {
				return "", nil
			}
			*media = append(*media, &engine.Media{MIMEType: d.MIMEType, Data: d.Data})
			return open + strconv.Itoa(len(*media)-1) + markClose, nil
		},
		"bullets":  bullets,
		"numbered": numbered,
		"join":     join,
		"field":    field,
		"default": func(def, v any) any {
			if v == nil {
				return def
			}
			if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
				return def
			}
			return v
		},
	}
}
