package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Blob is an encoded image paired with its declared MIME type.
type Blob struct {
	MIMEType string
	Data     []byte
}

func (b Blob) DataURI() string {
	return "data:" + b.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

func ParseDataURI(uri string) (Blob, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return Blob{}, errors.New("data uri must start with data:")
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Blob{}, errors.New("data uri is missing payload separator")
	}

	mimeType, encoding, _ := strings.Cut(meta, ";")
	if encoding != "base64" {
		return Blob{}, fmt.Errorf("unsupported data uri encoding %q", encoding)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Blob{}, fmt.Errorf("decode data uri payload: %w", err)
	}

	return Blob{MIMEType: mimeType, Data: data}, nil
}
