package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/models"
	"github.com/go-chi/chi/v5"
)

// streamLine is one NDJSON line of an asset upload response. Exactly one of
// the fields is set.
type streamLine struct {
	Event *models.IngestEvent `json:"event,omitempty"`
	Item  *models.Item        `json:"item,omitempty"`
	Error string              `json:"error,omitempty"`
}

// eventStream writes NDJSON lines, sending the header on the first one.
// Lines are dropped once the client is gone.
type eventStream struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
	gone    <-chan struct{}
	started bool
}

func newEventStream(w http.ResponseWriter, gone <-chan struct{}) *eventStream {
	f, _ := w.(http.Flusher)
	return &eventStream{w: w, enc: json.NewEncoder(w), flusher: f, gone: gone}
}

func (s *eventStream) closed() bool {
	select {
	case <-s.gone:
		return true
	default:
		return false
	}
}

func (s *eventStream) send(line streamLine) {
	if s.closed() {
		return
	}
	if !s.started {
		s.w.Header().Set("Content-Type", "application/x-ndjson")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	_ = s.enc.Encode(line)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// uploadAsset handles POST /items/{id}/asset. The multipart field "file" is
// ingested for the item and every pipeline event is streamed back as it
// happens. The last line carries the saved item or the error. The ingest and
// the save run to completion even if the client disconnects.
func (s *Server) uploadAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", common.ErrDecode, err))
		return
	}
	defer file.Close()

	path, err := s.spool(file)
	if err != nil {
		s.logger.Error(ctx, "spooling upload failed", "item_id", id, "error", err)
		writeError(w, err)
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn(ctx, "removing spooled upload failed", "path", path, "error", err)
		}
	}()

	stream := newEventStream(w, ctx.Done())
	item, err := s.items.AttachAsset(context.WithoutCancel(ctx), id, path, false, func(ev models.IngestEvent) {
		line := streamLine{Event: &ev}
		if ev.Err != nil {
			line.Error = ev.Err.Error()
		}
		stream.send(line)
	})
	if stream.closed() {
		s.logger.Info(ctx, "upload client went away", "item_id", id, "saved", err == nil)
		return
	}
	if err != nil {
		if !stream.started {
			writeError(w, err)
			return
		}
		stream.send(streamLine{Error: err.Error()})
		return
	}
	stream.send(streamLine{Item: item})
}

// spool copies the upload into the scratch directory.
func (s *Server) spool(src io.Reader) (string, error) {
	f, err := os.CreateTemp(s.scratchDir, "upload-*.usdz")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
