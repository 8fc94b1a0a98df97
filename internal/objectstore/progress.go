package objectstore

import (
	"bytes"
	"io"
	"sync"
)

// progressReader is a seekable reader over an in-memory payload that reports
// the highest offset read so far. Transports that rewind the body (retries,
// checksum passes) never make the reported value go backwards.
type progressReader struct {
	r        *bytes.Reader
	total    int64
	report   ProgressFunc
	mu       sync.Mutex
	reported int64
}

func newProgressReader(data []byte, report ProgressFunc) *progressReader {
	return &progressReader{
		r:        bytes.NewReader(data),
		total:    int64(len(data)),
		report:   report,
		reported: -1,
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.notify(p.total - int64(p.r.Len()))
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	return p.r.Seek(offset, whence)
}

// start emits the initial 0/total sample.
func (p *progressReader) start() {
	p.notify(0)
}

// finish emits total/total once the transport has accepted the payload.
func (p *progressReader) finish() {
	p.notify(p.total)
}

func (p *progressReader) notify(completed int64) {
	if p.report == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if completed <= p.reported {
		return
	}
	p.reported = completed
	p.report(completed, p.total)
}

var _ io.ReadSeeker = (*progressReader)(nil)
