// Package schema describes flow inputs and outputs as declarative field
// descriptors and validates loosely typed JSON values against them.
package schema

type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

type Format string

const (
	FormatNone    Format = ""
	FormatDataURI Format = "data-uri"
)

// Field describes one property. Items is set for arrays and Fields for objects.
type Field struct {
	Name        string
	Kind        Kind
	Description string
	Required    bool

	MinLength *int
	MaxLength *int
	NonBlank  bool
	Enum      []string
	Format    Format
	// MediaPrefix restricts data URIs to a MIME family, e.g. "image/".
	MediaPrefix string

	Min *float64
	Max *float64

	MinItems *int
	MaxItems *int
	Items    *Field

	Fields []Field
}

type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

func New(name string, fields ...Field) Schema {
	return Schema{Name: name, Fields: fields}
}

// Describe returns a copy of s with a description.
func (s Schema) Describe(d string) Schema {
	s.Description = d
	return s
}

// Field returns the top-level field called name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

type Option func(*Field)

func Required() Option { return func(f *Field) { f.Required = true } }

func Describe(d string) Option { return func(f *Field) { f.Description = d } }

func MinLength(n int) Option { return func(f *Field) { f.MinLength = &n } }

func MaxLength(n int) Option { return func(f *Field) { f.MaxLength = &n } }

// NonBlank rejects strings that are empty after trimming whitespace.
func NonBlank() Option { return func(f *Field) { f.NonBlank = true } }

func Enum(values ...string) Option {
	return func(f *Field) { f.Enum = append([]string(nil), values...) }
}

func Min(v float64) Option { return func(f *Field) { f.Min = &v } }

func Max(v float64) Option { return func(f *Field) { f.Max = &v } }

func MinItems(n int) Option { return func(f *Field) { f.MinItems = &n } }

func MaxItems(n int) Option { return func(f *Field) { f.MaxItems = &n } }

// DataURI requires a base64 data URI. A non-empty prefix narrows the MIME type.
func DataURI(mediaPrefix string) Option {
	return func(f *Field) {
		f.Format = FormatDataURI
		f.MediaPrefix = mediaPrefix
	}
}

func build(name string, kind Kind, opts []Option) Field {
	f := Field{Name: name, Kind: kind}
	for _, o := range opts {
		o(&f)
	}
	return f
}

func String(name string, opts ...Option) Field { return build(name, KindString, opts) }

func Number(name string, opts ...Option) Field { return build(name, KindNumber, opts) }

func Integer(name string, opts ...Option) Field { return build(name, KindInteger, opts) }

func Boolean(name string, opts ...Option) Field { return build(name, KindBoolean, opts) }

func Array(name string, items Field, opts ...Option) Field {
	f := build(name, KindArray, opts)
	items.Name = ""
	f.Items = &items
	return f
}

func Object(name string, fields []Field, opts ...Option) Field {
	f := build(name, KindObject, opts)
	f.Fields = fields
	return f
}
