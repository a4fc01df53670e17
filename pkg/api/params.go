package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Params are the named arguments of one Bot API method call.
type Params map[string]any

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p)+1)
	for key, value := range p {
		out[key] = value
	}
	return out
}

// InputFile is a binary attachment. A Params value of this type forces the
// call to be encoded as multipart/form-data.
type InputFile struct {
	Name   string
	Data   []byte
	Path   string
	Reader io.Reader
}

// FileFromBytes attaches an in-memory buffer.
func FileFromBytes(name string, data []byte) *InputFile {
	return &InputFile{Name: name, Data: data}
}

// FileFromPath attaches a local file. The file must exist when the call is made.
func FileFromPath(path string) *InputFile {
	return &InputFile{Name: filepath.Base(path), Path: path}
}

// FileFromReader attaches an opaque stream, read once when the call is made.
func FileFromReader(name string, r io.Reader) *InputFile {
	return &InputFile{Name: name, Reader: r}
}

func (f *InputFile) reader() (io.Reader, error) {
	switch {
	case f.Reader != nil:
		return f.Reader, nil
	case f.Data != nil:
		return bytes.NewReader(f.Data), nil
	default:
		return nil, fmt.Errorf("input file %q has no source", f.Name)
	}
}

func (f *InputFile) fileName() string {
	if f.Name != "" {
		return f.Name
	}
	return "file"
}

// HasAttachment reports whether any parameter is a binary attachment.
func HasAttachment(params Params) bool {
	for _, value := range params {
		if attachment(value) != nil {
			return true
		}
	}
	return false
}

func attachment(value any) *InputFile {
	switch file := value.(type) {
	case *InputFile:
		return file
	case InputFile:
		return &file
	default:
		return nil
	}
}

// multipartParts splits params into plain form fields and attachments.
// Non-string values are JSON encoded, which is what the Bot API expects for
// nested objects such as reply_markup.
func multipartParts(params Params) (map[string]string, map[string]*InputFile, error) {
	form := make(map[string]string, len(params))
	files := make(map[string]*InputFile)

	for key, value := range params {
		if value == nil {
			continue
		}
		if file := attachment(value); file != nil {
			if file.Path != "" {
				info, err := os.Stat(file.Path)
				if err != nil || info.IsDir() {
					return nil, nil, fmt.Errorf("%w: %s", ErrMissingFile, file.Path)
				}
			}
			files[key] = file
			continue
		}

		encoded, err := formValue(value)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s: %w", key, err)
		}
		form[key] = encoded
	}

	return form, files, nil
}

func formValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.RawMessage:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
