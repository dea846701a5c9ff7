package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/koustreak/stagegen/internal/catalog"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/pipeline"
)

// Multipart field names.
const (
	fieldExtract = "csv"
	fieldSchema  = "schema"
)

// inputRequest is the JSON form of a generation request.
type inputRequest struct {
	Extracts []catalog.Extract `json:"extracts"`
	Schema   string            `json:"schema"`
}

// decodeInput reads either a multipart upload or a JSON document into a
// pipeline input. The body is capped at MaxUploadBytes.
func (s *Server) decodeInput(w http.ResponseWriter, r *http.Request) (pipeline.Input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return pipeline.Input{}, errs.Wrap(errs.ErrKindInvalidInput, "missing or malformed Content-Type", err)
	}

	switch mediaType {
	case "multipart/form-data":
		return readMultipart(r)
	case "application/json":
		return readJSON(r.Body)
	default:
		return pipeline.Input{}, errs.Newf(errs.ErrKindInvalidInput,
			"unsupported Content-Type %q: use multipart/form-data or application/json", mediaType)
	}
}

// readMultipart streams the parts in order. Each csv part contributes its
// header only; the rest of the part is discarded unread.
func readMultipart(r *http.Request) (pipeline.Input, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return pipeline.Input{}, errs.Wrap(errs.ErrKindInvalidInput, "read multipart body", err)
	}

	var in pipeline.Input
	schemaSeen := false
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return pipeline.Input{}, bodyError(err, "read multipart body")
		}

		switch part.FormName() {
		case fieldExtract:
			name := part.FileName()
			if name == "" {
				part.Close()
				return pipeline.Input{}, errs.New(errs.ErrKindInvalidInput, "csv part has no file name")
			}
			cols, err := catalog.ReadHeader(part)
			part.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					return pipeline.Input{}, bodyError(tooLarge, "read "+name)
				}
				var e *errs.Error
				if errors.As(err, &e) {
					e.Message = name + ": " + e.Message
				}
				return pipeline.Input{}, err
			}
			in.Extracts = append(in.Extracts, catalog.Extract{FileName: name, Columns: cols})

		case fieldSchema:
			if schemaSeen {
				part.Close()
				return pipeline.Input{}, errs.New(errs.ErrKindInvalidInput, "more than one schema part")
			}
			schemaSeen = true
			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				return pipeline.Input{}, bodyError(err, "read schema part")
			}
			in.Schema = data

		default:
			part.Close()
			return pipeline.Input{}, errs.Newf(errs.ErrKindInvalidInput,
				"unexpected form field %q: expected %q or %q", part.FormName(), fieldExtract, fieldSchema)
		}
	}
	return in, nil
}

func readJSON(body io.Reader) (pipeline.Input, error) {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var req inputRequest
	if err := dec.Decode(&req); err != nil {
		return pipeline.Input{}, bodyError(err, "decode JSON body")
	}
	if dec.More() {
		return pipeline.Input{}, errs.New(errs.ErrKindInvalidInput, "JSON body holds more than one document")
	}
	return pipeline.Input{Extracts: req.Extracts, Schema: []byte(req.Schema)}, nil
}

// bodyError keeps *http.MaxBytesError reachable so the response is a 413.
func bodyError(err error, msg string) error {
	return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
}
