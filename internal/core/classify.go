package core

// JobKind is derived from a JobSpec and never stored; recompute it wherever
// it is needed so estimator and scheduler accounting cannot drift.
type JobKind int

const (
	KindGeneration JobKind = iota
	KindImageToVideo
	KindEdit
)

func (k JobKind) String() string {
	switch k {
	case KindImageToVideo:
		return "image_to_video"
	case KindEdit:
		return "edit"
	default:
		return "generation"
	}
}

// Classify maps a job to its kind. Precedence: a source-video reference wins
// over an image reference, an image reference wins over plain generation.
// A job carrying both video and image references is rejected during
// validation and never reaches this point.
func Classify(job JobSpec) JobKind {
	if job.VideoURL != "" {
		return KindEdit
	}
	if job.ImageURL != "" || job.ImagePath != "" {
		return KindImageToVideo
	}
	return KindGeneration
}
