package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	gerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-filerelay"
)

func objectKey(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

func (s *Server) objectInfo(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if key == "" {
		s.writeError(w, filerelay.ErrInvalidKey)
		return
	}

	if info, ok := s.cache.Get(key); ok {
		s.writeJSON(w, http.StatusOK, info)
		return
	}

	info, ok := s.backend.HeadInfo(r.Context(), key)
	if !ok {
		s.writeError(w, filerelay.ErrObjectNotFound)
		return
	}

	s.cache.Add(key, *info)
	s.writeJSON(w, http.StatusOK, info)
}

// link regenerates an access link. stream defaults to the classification of
// the key; expires accepts a Go duration or a number of seconds.
func (s *Server) link(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if key == "" {
		s.writeError(w, filerelay.ErrInvalidKey)
		return
	}

	q := r.URL.Query()

	stream := filerelay.Classify(key).Streamable
	if raw := q.Get("stream"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, invalidParam("stream", raw, "must be a boolean"))
			return
		}
		stream = v
	}

	var expires time.Duration
	if raw := q.Get("expires"); raw != "" {
		d, err := parseExpires(raw)
		if err != nil {
			s.writeError(w, invalidParam("expires", raw, "must be a positive duration or number of seconds"))
			return
		}
		expires = d
	}

	link, err := s.backend.Link(r.Context(), key, expires, stream)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, link)
}

func (s *Server) transfers(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.writeJSON(w, http.StatusOK, []filerelay.TransferRecord{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

func parseExpires(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs <= 0 {
			return 0, strconv.ErrRange
		}
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, strconv.ErrRange
	}
	return d, nil
}

func invalidParam(field, value, msg string) error {
	return gerrors.NewValidation("invalid query parameter",
		gerrors.FieldError{
			Field:   field,
			Message: msg,
			Value:   value,
		},
	).WithCode(http.StatusBadRequest).WithTextCode("INVALID_PARAMETER")
}

// TransferResponse is returned once an uploaded body has been relayed.
type TransferResponse struct {
	*filerelay.TransferResult
	Actions []filerelay.Action `json:"actions"`
}

// createTransfer relays the request body. The attachment name comes from the
// name query parameter, the kind from kind (guessed from the name otherwise).
func (s *Server) createTransfer(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength < 0 {
		s.writeError(w, gerrors.New("content length required", gerrors.CategoryBadInput).
			WithCode(http.StatusLengthRequired).WithTextCode("LENGTH_REQUIRED"))
		return
	}

	q := r.URL.Query()
	name := q.Get("name")

	kind := filerelay.FileKind(q.Get("kind"))
	if kind == "" {
		kind = filerelay.KindFor(name)
	}

	req := filerelay.TransferRequest{
		Name:     name,
		Size:     r.ContentLength,
		Kind:     kind,
		MimeType: r.Header.Get("Content-Type"),
		Source:   filerelay.NewReaderSource(r.Body, r.ContentLength),
	}

	res, err := s.backend.Transfer(r.Context(), req, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, TransferResponse{
		TransferResult: res,
		Actions:        filerelay.Actions(res, s.playerBase),
	})
}
