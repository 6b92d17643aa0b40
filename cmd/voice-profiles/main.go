// main package for voice-profiles, an out-of-band management tool for the
// voice profile catalog.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/flowsmartly/voice-worker/internal/voices"
)

// Flag descriptions.
const (
	flagStorageDesc    = "Directory holding the profiles catalog"
	flagUserDesc       = "Owner user id"
	flagNameDesc       = "Profile name"
	flagSampleDesc     = "URL of the voice sample audio"
	flagTranscriptDesc = "Transcript of the voice sample"
	flagLanguageDesc   = "Language code"
	flagIDDesc         = "Profile id"
)

// Static errors.
var (
	ErrCommandRequired = errors.New("command required: create, get, list, or delete")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrUserRequired    = errors.New("--user is required")
	ErrNameRequired    = errors.New("--name is required")
	ErrSampleRequired  = errors.New("--sample-url is required")
	ErrIDRequired      = errors.New("--id is required")
)

type appFlags struct {
	storageDir string
	userID     string
	name       string
	sampleURL  string
	transcript string
	language   string
	profileID  string
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return ErrCommandRequired
	}

	command := os.Args[1]
	flags := parseFlags(os.Args[2:])

	registry, err := voices.New(flags.storageDir)
	if err != nil {
		return fmt.Errorf("failed to open profile registry: %w", err)
	}

	switch command {
	case "create":
		return createProfile(registry, flags)
	case "get":
		return getProfile(registry, flags)
	case "list":
		return listProfiles(registry, flags)
	case "delete":
		return deleteProfile(registry, flags)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

func createProfile(registry *voices.Registry, flags appFlags) error {
	if flags.userID == "" {
		return ErrUserRequired
	}

	if flags.name == "" {
		return ErrNameRequired
	}

	if flags.sampleURL == "" {
		return ErrSampleRequired
	}

	profile, err := registry.Create(
		flags.userID, flags.name, flags.sampleURL,
		flags.transcript, flags.language, nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return printJSON(profile)
}

func getProfile(registry *voices.Registry, flags appFlags) error {
	if flags.profileID == "" {
		return ErrIDRequired
	}

	profile, ok := registry.Get(flags.profileID)
	if !ok {
		return fmt.Errorf("%w: %s", voices.ErrProfileNotFound, flags.profileID)
	}

	return printJSON(profile)
}

func listProfiles(registry *voices.Registry, flags appFlags) error {
	if flags.userID == "" {
		return ErrUserRequired
	}

	return printJSON(registry.List(flags.userID))
}

func deleteProfile(registry *voices.Registry, flags appFlags) error {
	if flags.profileID == "" {
		return ErrIDRequired
	}

	removed, err := registry.Delete(flags.profileID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	if !removed {
		return fmt.Errorf("%w: %s", voices.ErrProfileNotFound, flags.profileID)
	}

	fmt.Printf("Deleted: %s\n", flags.profileID)

	return nil
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	fmt.Println(string(data))

	return nil
}

func parseFlags(args []string) appFlags {
	var flags appFlags

	flagSet := flag.NewFlagSet("voice-profiles", flag.ExitOnError)
	flagSet.StringVar(&flags.storageDir, "storage", "/workspace/voices", flagStorageDesc)
	flagSet.StringVar(&flags.userID, "user", "", flagUserDesc)
	flagSet.StringVar(&flags.name, "name", "", flagNameDesc)
	flagSet.StringVar(&flags.sampleURL, "sample-url", "", flagSampleDesc)
	flagSet.StringVar(&flags.transcript, "transcript", "", flagTranscriptDesc)
	flagSet.StringVar(&flags.language, "language", "en", flagLanguageDesc)
	flagSet.StringVar(&flags.profileID, "id", "", flagIDDesc)

	// ExitOnError makes the error unreachable.
	_ = flagSet.Parse(args)

	return flags
}
