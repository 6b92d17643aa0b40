// Package core defines the job contract and collaborator interfaces for the
// voice worker.
package core

import "context"

// Output formats accepted by a job.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
)

// DefaultLanguage is applied when a job omits the language field.
const DefaultLanguage = "en"

// StatusCompleted is the terminal status of a successful job.
const StatusCompleted = "completed"

// JobRequest is the wire shape of a single synthesis job.
type JobRequest struct {
	// JobID identifies the job; the worker assigns one when absent.
	JobID string `json:"job_id,omitempty"`

	// Text is the text to synthesize. Required.
	Text string `json:"text"`

	// Language is the synthesis language code (e.g. "en", "es").
	// Defaults to "en".
	Language string `json:"language,omitempty"`

	// VoiceCloneURL optionally points at a reference voice sample.
	// Its presence activates voice cloning.
	VoiceCloneURL string `json:"voice_clone_url,omitempty"`

	// VoiceCloneText is the transcript of the reference sample. Required
	// for cloning-conditioned synthesis.
	VoiceCloneText string `json:"voice_clone_text,omitempty"`

	// UseOpenVoice requests the tone-color enhancement pass. Only honored
	// when a reference sample is present.
	UseOpenVoice bool `json:"use_openvoice,omitempty"`

	// OutputFormat is "wav" or "mp3". Defaults to "mp3".
	OutputFormat string `json:"output_format,omitempty"`
}

// JobResult is the single result object returned per job. Exactly one of
// the success fields or Error is populated, never both.
type JobResult struct {
	AudioURL string `json:"audio_url,omitempty"`
	Status   string `json:"status,omitempty"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
	Format   string `json:"format,omitempty"`
	JobID    string `json:"job_id,omitempty"`

	// Warnings carries degraded-quality conditions absorbed by the
	// pipeline (enhancement or transcode fallbacks).
	Warnings []string `json:"warnings,omitempty"`

	Error string `json:"error,omitempty"`
}

// Succeeded reports whether the result is the success shape.
func (r JobResult) Succeeded() bool {
	return r.Error == "" && r.Status == StatusCompleted
}

// SynthesisRequest describes one call to the speech synthesis engine.
type SynthesisRequest struct {
	Text     string
	Language string

	// ReferenceAudioPath and ReferenceText switch the engine into
	// voice-cloning mode when both are set.
	ReferenceAudioPath string
	ReferenceText      string

	// OutputPath is where the engine writes the synthesized WAV.
	OutputPath string
}

// SynthesisResult reports the artifact produced by a synthesis call.
type SynthesisResult struct {
	AudioPath  string
	SampleRate int
}

// SpeechSynthesizer is the inference adapter contract.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error)
}

// VoiceColorConverter re-shapes already-synthesized audio to match the
// timbre of a reference sample. Failures are recoverable by callers.
type VoiceColorConverter interface {
	Recolor(ctx context.Context, sourcePath, referencePath, outputPath string) (string, error)
}

// Fetcher downloads a remote resource to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, url, destinationPath string) (string, error)
}

// Transcoder converts a WAV file to the requested container. On failure it
// returns the input path unchanged along with the error, so callers can
// degrade to the untranscoded audio.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath, format string) (string, error)
}

// ObjectPublisher uploads artifacts to durable storage and returns their
// public URL. Download exists for consumers that read artifacts back.
type ObjectPublisher interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

// JobRunner executes one job end-to-end and always returns a well-formed
// result; it never panics across the boundary.
type JobRunner interface {
	RunJob(ctx context.Context, req JobRequest) JobResult
}
