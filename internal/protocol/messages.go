package protocol

import "time"

// Variant is one style column of a batch request.
type Variant struct {
	Tag         string `json:"tag,omitempty"`
	Label       string `json:"label,omitempty"`
	CustomStyle string `json:"custom_style,omitempty"`
}

// BatchRequest asks the studio to synthesize text for every voice × variant pair.
type BatchRequest struct {
	Model    string    `json:"model,omitempty"`
	Voices   []string  `json:"voices"`
	Variants []Variant `json:"variants,omitempty"`
	Text     string    `json:"text"`
}

// BatchAccepted is the reply to a BatchRequest. Error is set when the request was rejected and
// no jobs were created.
type BatchAccepted struct {
	BatchID string   `json:"batch_id,omitempty"`
	JobIDs  []string `json:"job_ids,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// JobStatusEvent is published once per job transition.
type JobStatusEvent struct {
	BatchID    string    `json:"batch_id"`
	JobID      string    `json:"job_id"`
	Voice      string    `json:"voice"`
	Model      string    `json:"model"`
	StyleLabel string    `json:"style_label,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	MIMEType   string    `json:"mime_type,omitempty"`
	AudioBytes int       `json:"audio_bytes,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// BatchDone summarizes a finished batch.
type BatchDone struct {
	BatchID        string   `json:"batch_id"`
	Succeeded      []string `json:"succeeded"`
	Failed         []string `json:"failed"`
	PersistWarning string   `json:"persist_warning,omitempty"`
}

// PlaybackEvent names an artifact on the playback subjects. Clients publish it on
// SubjectPlaybackStarted and SubjectPlaybackStopped, and receive it on their artifact's pause subject.
type PlaybackEvent struct {
	ArtifactID string `json:"artifact_id"`
}

const (
	SubjectBatchRequest    = "tts.batch.request"
	SubjectJobStatusPrefix = "tts.job.status"
	SubjectBatchDonePrefix = "tts.batch.done"
	SubjectPlaybackStarted = "tts.playback.started"
	SubjectPlaybackStopped = "tts.playback.stopped"
	SubjectPlaybackPause   = "tts.playback.pause"
)

func JobStatusSubject(batchID string) string {
	return SubjectJobStatusPrefix + "." + batchID
}

func BatchDoneSubject(batchID string) string {
	return SubjectBatchDonePrefix + "." + batchID
}

// PlaybackPauseSubject is where the client rendering artifactID listens for pause requests.
func PlaybackPauseSubject(artifactID string) string {
	return SubjectPlaybackPause + "." + artifactID
}
