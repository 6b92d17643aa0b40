// Package pipeline orchestrates a single synthesis job: validate, stage,
// fetch, synthesize, recolor, transcode, publish, clean up.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/flowsmartly/voice-worker/internal/core"
)

// Result model tags.
const (
	modelTagBase           = "f5-tts"
	modelTagEnhancedSuffix = "+openvoice"
)

// Staging file names, matching the artifact layout of each stage.
const (
	referenceFileName = "reference.wav"
	synthesisFileName = "f5_output.wav"
	recolorFileName   = "openvoice_output.wav"
	outputFilePrefix  = "output."
)

const stagingDirPattern = "tts_*"

// Validation errors surfaced before any side effect.
var (
	ErrTextRequired        = errors.New("text is required")
	ErrUnsupportedFormat   = errors.New("output_format must be wav or mp3")
	ErrNoReferenceStaged   = errors.New("voice color enhancement requires a reference sample")
	errFallbackNotEnabled  = errors.New("local fallback not configured")
	errFallbackUnavailable = errors.New("local fallback failed")
)

// Options tunes job orchestration.
type Options struct {
	// WorkDir is the parent directory for per-job staging directories.
	// Empty selects the system temp dir.
	WorkDir string

	// LocalFallbackDir, when non-empty, enables the explicit lower-tier
	// publish fallback for failed uploads.
	LocalFallbackDir string

	// StrictEnhancement makes a requested enhancement without an
	// available reference sample a hard error instead of a silent skip.
	StrictEnhancement bool
}

// Pipeline runs jobs against injected collaborators. It is safe for
// concurrent use; every job owns its own staging directory.
type Pipeline struct {
	fetcher     core.Fetcher
	synthesizer core.SpeechSynthesizer
	converter   core.VoiceColorConverter
	transcoder  core.Transcoder
	publisher   core.ObjectPublisher
	log         *logger.Logger
	opts        Options
}

// New creates a Pipeline.
func New(
	fetcher core.Fetcher,
	synthesizer core.SpeechSynthesizer,
	converter core.VoiceColorConverter,
	transcoder core.Transcoder,
	publisher core.ObjectPublisher,
	log *logger.Logger,
	opts Options,
) *Pipeline {
	return &Pipeline{
		fetcher:     fetcher,
		synthesizer: synthesizer,
		converter:   converter,
		transcoder:  transcoder,
		publisher:   publisher,
		log:         log,
		opts:        opts,
	}
}

// RunJob executes one job end-to-end and always returns exactly one result
// shape: the success payload or {error}. A fault in any stage never escapes
// to the caller; the worker stays alive for the next job.
func (p *Pipeline) RunJob(ctx context.Context, req core.JobRequest) (result core.JobResult) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Job %s panicked: %v", req.JobID, r)

			result = core.JobResult{Error: fmt.Sprintf("handler error: %v", r)}
		}
	}()

	validationErr := validate(req)
	if validationErr != nil {
		return core.JobResult{Error: validationErr.Error()}
	}

	job := newJobState(req)

	if p.opts.WorkDir != "" {
		mkdirErr := os.MkdirAll(p.opts.WorkDir, 0o750)
		if mkdirErr != nil {
			return core.JobResult{Error: fmt.Sprintf("failed to create work directory: %v", mkdirErr)}
		}
	}

	stagingDir, err := os.MkdirTemp(p.opts.WorkDir, stagingDirPattern)
	if err != nil {
		return core.JobResult{Error: fmt.Sprintf("failed to create staging directory: %v", err)}
	}

	defer func() {
		removeErr := os.RemoveAll(stagingDir)
		if removeErr != nil {
			p.log.Warn("Failed to remove staging dir '%s': %v", stagingDir, removeErr)
		}
	}()

	job.stagingDir = stagingDir

	p.log.Info("Job %s: staging in %s", job.id, stagingDir)

	return p.runStages(ctx, job)
}

// jobState carries a job's normalized fields and intermediate artifacts
// across stages.
type jobState struct {
	id         string
	req        core.JobRequest
	language   string
	format     string
	stagingDir string

	referencePath string
	workingPath   string
	enhanced      bool
	warnings      []string
}

func newJobState(req core.JobRequest) *jobState {
	job := &jobState{
		id:       req.JobID,
		req:      req,
		language: req.Language,
		format:   req.OutputFormat,
	}

	if job.id == "" {
		job.id = uuid.NewString()
	}

	if job.language == "" {
		job.language = core.DefaultLanguage
	}

	if job.format == "" {
		job.format = core.FormatMP3
	}

	return job
}

func validate(req core.JobRequest) error {
	if req.Text == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, ErrTextRequired)
	}

	switch req.OutputFormat {
	case "", core.FormatWAV, core.FormatMP3:
		return nil
	default:
		return fmt.Errorf("%w: %w: got %q", core.ErrValidation, ErrUnsupportedFormat, req.OutputFormat)
	}
}

func (p *Pipeline) runStages(ctx context.Context, job *jobState) core.JobResult {
	fetchErr := p.stageFetchReference(ctx, job)
	if fetchErr != nil {
		return core.JobResult{Error: fetchErr.Error()}
	}

	synthErr := p.stageSynthesize(ctx, job)
	if synthErr != nil {
		return core.JobResult{Error: synthErr.Error()}
	}

	enhanceErr := p.stageEnhance(ctx, job)
	if enhanceErr != nil {
		return core.JobResult{Error: enhanceErr.Error()}
	}

	p.stageTranscode(ctx, job)

	audioURL, uploadErr := p.stagePublish(ctx, job)
	if uploadErr != nil {
		return core.JobResult{Error: uploadErr.Error()}
	}

	model := modelTagBase
	if job.enhanced {
		model += modelTagEnhancedSuffix
	}

	p.log.Info("Job %s: completed, published %s", job.id, audioURL)

	return core.JobResult{
		AudioURL: audioURL,
		Status:   core.StatusCompleted,
		Model:    model,
		Language: job.language,
		Format:   job.format,
		JobID:    job.id,
		Warnings: job.warnings,
	}
}

// stageFetchReference downloads the reference voice sample when cloning is
// requested. A failed download aborts the job with a message distinct from
// validation failures.
func (p *Pipeline) stageFetchReference(ctx context.Context, job *jobState) error {
	if job.req.VoiceCloneURL == "" {
		return nil
	}

	destination := filepath.Join(job.stagingDir, referenceFileName)

	path, err := p.fetcher.Fetch(ctx, job.req.VoiceCloneURL, destination)
	if err != nil {
		return fmt.Errorf("failed to download voice sample: %w", err)
	}

	job.referencePath = path

	return nil
}

// stageSynthesize invokes the inference adapter. Synthesis runs in cloning
// mode only when both the staged reference and its transcript are present.
func (p *Pipeline) stageSynthesize(ctx context.Context, job *jobState) error {
	outputPath := filepath.Join(job.stagingDir, synthesisFileName)

	synthesisReq := core.SynthesisRequest{
		Text:       job.req.Text,
		Language:   job.language,
		OutputPath: outputPath,
	}
	if job.referencePath != "" && job.req.VoiceCloneText != "" {
		synthesisReq.ReferenceAudioPath = job.referencePath
		synthesisReq.ReferenceText = job.req.VoiceCloneText
	}

	synthesisResult, err := p.synthesizer.Synthesize(ctx, synthesisReq)
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}

	job.workingPath = synthesisResult.AudioPath

	p.log.Info("Job %s: synthesized %s at %d Hz", job.id, synthesisResult.AudioPath, synthesisResult.SampleRate)

	return nil
}

// stageEnhance applies the tone-color conversion when requested and a
// reference is staged. Enhancement is a quality add-on: its failure is
// absorbed as a warning and the job continues on the pre-enhancement audio.
func (p *Pipeline) stageEnhance(ctx context.Context, job *jobState) error {
	if !job.req.UseOpenVoice {
		return nil
	}

	if job.referencePath == "" {
		if p.opts.StrictEnhancement {
			return fmt.Errorf("%w: %w", core.ErrValidation, ErrNoReferenceStaged)
		}

		return nil
	}

	outputPath := filepath.Join(job.stagingDir, recolorFileName)

	recoloredPath, err := p.converter.Recolor(ctx, job.workingPath, job.referencePath, outputPath)
	if err != nil {
		warning := fmt.Sprintf("voice color enhancement failed: %v", err)
		job.warnings = append(job.warnings, warning)

		p.log.Warn("Job %s: %s", job.id, warning)

		return nil
	}

	job.workingPath = recoloredPath
	job.enhanced = true

	return nil
}

// stageTranscode converts the working WAV to the requested container. On
// failure the job degrades to the untranscoded WAV with a warning; the
// result's format field reflects what was actually published.
func (p *Pipeline) stageTranscode(ctx context.Context, job *jobState) {
	outputPath := filepath.Join(job.stagingDir, outputFilePrefix+job.format)

	finalPath, err := p.transcoder.Transcode(ctx, job.workingPath, outputPath, job.format)
	if err != nil {
		warning := fmt.Sprintf("transcoding to %s failed, publishing wav: %v", job.format, err)
		job.warnings = append(job.warnings, warning)

		p.log.Warn("Job %s: %s", job.id, warning)

		job.format = core.FormatWAV
	}

	job.workingPath = finalPath
}

// stagePublish uploads the final artifact. Upload failure is terminal
// unless the deployment configured the explicit local fallback.
func (p *Pipeline) stagePublish(ctx context.Context, job *jobState) (string, error) {
	data, readErr := os.ReadFile(job.workingPath)
	if readErr != nil {
		return "", fmt.Errorf("failed to read final audio artifact: %w", readErr)
	}

	key := fmt.Sprintf("tts/%s.%s", job.id, job.format)

	audioURL, uploadErr := p.publisher.Upload(ctx, key, data)
	if uploadErr == nil {
		return audioURL, nil
	}

	fallbackURL, fallbackErr := p.publishFallback(job, data)
	if fallbackErr != nil {
		if errors.Is(fallbackErr, errFallbackNotEnabled) {
			return "", fmt.Errorf("upload failed: %w", uploadErr)
		}

		return "", fmt.Errorf("upload failed: %w (%v)", uploadErr, fallbackErr)
	}

	warning := fmt.Sprintf("upload failed, artifact kept locally: %v", uploadErr)
	job.warnings = append(job.warnings, warning)

	p.log.Warn("Job %s: %s", job.id, warning)

	return fallbackURL, nil
}

func (p *Pipeline) publishFallback(job *jobState, data []byte) (string, error) {
	if p.opts.LocalFallbackDir == "" {
		return "", errFallbackNotEnabled
	}

	mkdirErr := os.MkdirAll(p.opts.LocalFallbackDir, 0o750)
	if mkdirErr != nil {
		return "", fmt.Errorf("%w: %w", errFallbackUnavailable, mkdirErr)
	}

	fallbackPath := filepath.Join(p.opts.LocalFallbackDir, job.id+"."+job.format)

	writeErr := os.WriteFile(fallbackPath, data, 0o600)
	if writeErr != nil {
		return "", fmt.Errorf("%w: %w", errFallbackUnavailable, writeErr)
	}

	return "file://" + fallbackPath, nil
}
