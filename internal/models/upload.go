package models

// Stage is the position of an ingestion in its lifecycle.
type Stage int

const (
	StageIdle Stage = iota
	StageUploadingPrimary
	StageDerivingThumbnail
	StageUploadingThumbnail
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageUploadingPrimary:
		return "uploading_primary"
	case StageDerivingThumbnail:
		return "deriving_thumbnail"
	case StageUploadingThumbnail:
		return "uploading_thumbnail"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the stage name on the wire.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Uploading reports whether progress is meaningful in this stage.
func (s Stage) Uploading() bool {
	return s == StageUploadingPrimary || s == StageUploadingThumbnail
}

// Terminal reports whether no further events follow.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Progress describes a single transfer. It resets whenever a new upload
// stage starts.
type Progress struct {
	FractionCompleted float64 `json:"fractionCompleted"`
	BytesCompleted    int64   `json:"bytesCompleted"`
	BytesTotal        int64   `json:"bytesTotal"`
}

// NewProgress computes a clamped fraction from byte counts.
func NewProgress(completed, total int64) Progress {
	p := Progress{BytesCompleted: completed, BytesTotal: total}
	if total > 0 {
		p.FractionCompleted = float64(completed) / float64(total)
	}
	if p.FractionCompleted < 0 {
		p.FractionCompleted = 0
	}
	if p.FractionCompleted > 1 {
		p.FractionCompleted = 1
	}
	return p
}

// IngestResult holds the references produced by a successful ingestion.
// ThumbnailRef is empty when no preview was derived or uploaded.
type IngestResult struct {
	AssetRef     string `json:"primaryAssetRef"`
	ThumbnailRef string `json:"thumbnailRef,omitempty"`
}

// HasThumbnail reports whether a thumbnail reference was produced.
func (r IngestResult) HasThumbnail() bool {
	return r.ThumbnailRef != ""
}

// IngestEvent is one element of an ingestion's event stream: a stage
// transition, a progress sample, or the single terminal outcome.
type IngestEvent struct {
	ItemID   string        `json:"itemId"`
	Stage    Stage         `json:"stage"`
	Progress *Progress     `json:"progress,omitempty"`
	Result   *IngestResult `json:"result,omitempty"`
	Err      error         `json:"-"`
}

// Terminal reports whether this event ends the stream.
func (e IngestEvent) Terminal() bool {
	return e.Stage.Terminal()
}
