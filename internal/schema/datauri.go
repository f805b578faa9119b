package schema

import (
	"encoding/base64"
	"errors"
	"strings"
)

// DataURIValue is a decoded data:<mime>[;params];base64,<payload> string.
type DataURIValue struct {
	MIMEType string
	Params   []string
	Data     []byte
}

var errNotDataURI = errors.New("not a base64 data URI")

// ParseDataURI decodes a base64 data URI. The MIME type is mandatory.
func ParseDataURI(s string) (DataURIValue, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return DataURIValue{}, errNotDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return DataURIValue{}, errNotDataURI
	}
	parts := strings.Split(meta, ";")
	mime := strings.ToLower(strings.TrimSpace(parts[0]))
	if mime == "" || strings.Count(mime, "/") != 1 || strings.HasPrefix(mime, "/") || strings.HasSuffix(mime, "/") {
		return DataURIValue{}, errors.New("data URI missing MIME type")
	}
	if len(parts) < 2 || parts[len(parts)-1] != "base64" {
		return DataURIValue{}, errors.New("data URI must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return DataURIValue{}, errors.New("data URI payload is not valid base64")
		}
	}
	if len(data) == 0 {
		return DataURIValue{}, errors.New("data URI payload is empty")
	}
	return DataURIValue{MIMEType: mime, Params: parts[1 : len(parts)-1], Data: data}, nil
}

func (d DataURIValue) String() string {
	return EncodeDataURI(d.MIMEType, d.Data, d.Params...)
}

func EncodeDataURI(mime string, data []byte, params ...string) string {
	var b strings.Builder
	b.Grow(len(mime) + base64.StdEncoding.EncodedLen(len(data)) + 16)
	b.WriteString("data:")
	b.WriteString(mime)
	for _, p := range params {
		b.WriteByte(';')
		b.WriteString(p)
	}
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}
