package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"podcast-api/internal/media"
	"podcast-api/internal/service"
	"podcast-api/internal/validation"
)

const (
	maxJSONBytes         int64 = 1 << 20
	multipartMemoryLimit int64 = 8 << 20
)

var errBadPayload = errors.New("malformed request body")

const msgFieldNotString = "Ce champ doit être une chaîne de caractères."

// payload is a decoded write request. JSON bodies, urlencoded forms and
// multipart forms all end up as string values plus optional file parts.
type payload struct {
	values  map[string]string
	files   map[string]*media.File
	closers []io.Closer
}

// readPayload decodes r according to its content type. fileFields names the
// multipart parts read as attachments; in JSON bodies the same fields carry
// a URL instead. Callers must Close the payload.
func (h *Handler) readPayload(w http.ResponseWriter, r *http.Request, fileFields ...string) (*payload, error) {
	p := &payload{values: map[string]string{}, files: map[string]*media.File{}}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes())
		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			return nil, wrapPayloadErr(err)
		}
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				p.values[key] = values[0]
			}
		}
		for _, field := range fileFields {
			headers := r.MultipartForm.File[field]
			if len(headers) == 0 {
				continue
			}
			header := headers[0]
			file, err := header.Open()
			if err != nil {
				p.Close()
				return nil, fmt.Errorf("open %s part: %w", field, err)
			}
			p.closers = append(p.closers, file)
			p.files[field] = &media.File{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Reader:      file,
			}
		}
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
		if err := r.ParseForm(); err != nil {
			return nil, wrapPayloadErr(err)
		}
		for key, values := range r.PostForm {
			if len(values) > 0 {
				p.values[key] = values[0]
			}
		}
	default:
		if r.Body == nil {
			return p, nil
		}
		defer r.Body.Close()
		var raw map[string]any
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return p, nil
			}
			return nil, wrapPayloadErr(err)
		}
		fields := validation.Fields{}
		for key, value := range raw {
			switch v := value.(type) {
			case nil:
				p.values[key] = ""
			case string:
				p.values[key] = v
			default:
				fields.Add(key, msgFieldNotString)
			}
		}
		if len(fields) > 0 {
			return nil, &service.ValidationError{Fields: fields}
		}
	}
	return p, nil
}

func wrapPayloadErr(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: %v", errBadPayload, err)
}

// str returns the value of key, or nil when the request did not send it.
func (p *payload) str(key string) *string {
	value, ok := p.values[key]
	if !ok {
		return nil
	}
	return &value
}

// text returns the value of key, or "" when absent.
func (p *payload) text(key string) string {
	return p.values[key]
}

// attachment returns the file part of key, or its value as a URL.
func (p *payload) attachment(key string) *service.Attachment {
	if file, ok := p.files[key]; ok {
		return &service.Attachment{File: file}
	}
	if value, ok := p.values[key]; ok && strings.TrimSpace(value) != "" {
		return &service.Attachment{URL: value}
	}
	return nil
}

func (p *payload) Close() {
	for _, closer := range p.closers {
		_ = closer.Close()
	}
	p.closers = nil
}

// writePayloadError answers a request whose body could not be decoded.
func (h *Handler) writePayloadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadPayload) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeServiceError(w, r, err)
}
