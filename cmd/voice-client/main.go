// main package for the voice-client, a request/reply job submission tool.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/flowsmartly/voice-worker/internal/core"
)

// Flag descriptions.
const (
	flagTextDesc     = "Text to convert to speech"
	flagLanguageDesc = "Language code (e.g. en, es)"
	flagVoiceURLDesc = "URL of a reference voice sample for cloning"
	flagVoiceTxtDesc = "Transcript of the reference voice sample"
	flagOpenVoice    = "Apply OpenVoice tone-color enhancement"
	flagFormatDesc   = "Output format: mp3 or wav"
	flagServerDesc   = "NATS server URL"
	flagSubjectDesc  = "Jobs subject the worker listens on"
	flagTimeoutDesc  = "Seconds to wait for the job result"
)

// Defaults.
const (
	defaultSubject = "voice.jobs"
	defaultTimeout = 300
)

// ErrTextRequired indicates the mandatory --text flag is missing.
var ErrTextRequired = errors.New("--text is required")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text      string
	language  string
	voiceURL  string
	voiceText string
	openVoice bool
	format    string
	server    string
	subject   string
	timeout   int
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()
	if flags.text == "" {
		return ErrTextRequired
	}

	request := core.JobRequest{
		Text:           flags.text,
		Language:       flags.language,
		VoiceCloneURL:  flags.voiceURL,
		VoiceCloneText: flags.voiceText,
		UseOpenVoice:   flags.openVoice,
		OutputFormat:   flags.format,
	}

	result, err := submit(flags, request)
	if err != nil {
		return err
	}

	if result.Error != "" {
		return fmt.Errorf("job failed: %s", result.Error)
	}

	fmt.Printf("Audio URL: %s\n", result.AudioURL)
	fmt.Printf("Model:     %s\n", result.Model)
	fmt.Printf("Format:    %s\n", result.Format)
	fmt.Printf("Job ID:    %s\n", result.JobID)

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	return nil
}

func submit(flags appFlags, request core.JobRequest) (core.JobResult, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return core.JobResult{}, fmt.Errorf("failed to marshal job request: %w", err)
	}

	natsConnection, err := nats.Connect(flags.server)
	if err != nil {
		return core.JobResult{}, fmt.Errorf("failed to connect to NATS at %s: %w", flags.server, err)
	}
	defer natsConnection.Close()

	timeout := time.Duration(flags.timeout) * time.Second

	msg, err := natsConnection.Request(flags.subject, payload, timeout)
	if err != nil {
		return core.JobResult{}, fmt.Errorf("job request failed: %w", err)
	}

	var result core.JobResult

	err = json.Unmarshal(msg.Data, &result)
	if err != nil {
		return core.JobResult{}, fmt.Errorf("failed to decode job result: %w", err)
	}

	return result, nil
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.text, "text", "", flagTextDesc)
	flag.StringVar(&flags.language, "language", "", flagLanguageDesc)
	flag.StringVar(&flags.voiceURL, "voice-url", "", flagVoiceURLDesc)
	flag.StringVar(&flags.voiceText, "voice-text", "", flagVoiceTxtDesc)
	flag.BoolVar(&flags.openVoice, "openvoice", false, flagOpenVoice)
	flag.StringVar(&flags.format, "format", "", flagFormatDesc)
	flag.StringVar(&flags.server, "server", nats.DefaultURL, flagServerDesc)
	flag.StringVar(&flags.subject, "subject", defaultSubject, flagSubjectDesc)
	flag.IntVar(&flags.timeout, "timeout", defaultTimeout, flagTimeoutDesc)
	flag.Parse()

	return flags
}
