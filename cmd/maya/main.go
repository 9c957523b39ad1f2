// Command maya is a terminal client for real-time voice conversations with
// a remote speech model.
package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/viper"

	conversation "github.com/mayavoice/maya-core/core"
	"github.com/mayavoice/maya-core/core/actions"
	"github.com/mayavoice/maya-core/core/audio/miniaudio"
	"github.com/mayavoice/maya-core/core/session/gemini"
	"github.com/mayavoice/maya-core/core/settings"
)

const (
	defaultModel = "models/gemini-2.5-flash-native-audio-preview-09-2025"
	defaultVoice = "Zephyr"
)

// settingsStore hands the conversation a stable snapshot of the current
// settings. The conversation reads it once per start; edits through the
// settings panel only affect the next conversation.
type settingsStore struct {
	mu      sync.Mutex
	current settings.Settings
}

func (s *settingsStore) get() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

func (s *settingsStore) set(updated settings.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = updated
}

func main() {
	v := viper.New()
	v.SetEnvPrefix("MAYA")
	v.AutomaticEnv()
	v.SetDefault("model", defaultModel)
	v.SetDefault("voice", defaultVoice)
	_ = v.BindEnv("api_key", "MAYA_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("config", "MAYA_CONFIG")

	apiKey := v.GetString("api_key")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "set MAYA_API_KEY (or GEMINI_API_KEY) to run maya")
		os.Exit(1)
	}

	loaded, err := settings.Load(v.GetString("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
		os.Exit(1)
	}
	store := &settingsStore{current: loaded}

	// The credential is resolved from the store on use, so saving a new
	// token in the settings panel takes effect for the next conversation.
	dispatcher := actions.NewDispatcher(actions.NewRegistry(
		actions.NewWebhook(actions.WithBearerTokenSource(func() string {
			return store.get().WebhookToken
		})),
	))

	// Callbacks fire from conversation goroutines; the program pointer is
	// published before any conversation can start.
	var program atomic.Pointer[tea.Program]
	send := func(msg tea.Msg) {
		if p := program.Load(); p != nil {
			p.Send(msg)
		}
	}

	controller := conversation.New(
		conversation.WithAudioInput(miniaudio.NewCaptureDevice()),
		conversation.WithAudioOutput(miniaudio.NewPlaybackDevice()),
		conversation.WithSessionDialer(gemini.NewClient(apiKey)),
		conversation.WithActionDispatcher(dispatcher),
		conversation.WithSettingsSource(store.get),
		conversation.WithModel(v.GetString("model")),
		conversation.WithVoice(v.GetString("voice")),
		conversation.WithStatusCallback(func(status conversation.Status) {
			send(statusMsg(status))
		}),
		conversation.WithTranscriptCallback(func(entries []conversation.TranscriptEntry) {
			send(transcriptMsg(entries))
		}),
		conversation.WithErrorCallback(func(convErr *conversation.Error) {
			send(errorMsg{err: convErr})
		}),
		conversation.WithLogCallback(func(line string) {
			send(logMsg(line))
		}),
	)

	p := tea.NewProgram(newModel(controller, store), tea.WithAltScreen())
	program.Store(p)

	_, runErr := p.Run()
	controller.Stop()
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "maya exited with an error: %v\n", runErr)
		os.Exit(1)
	}
}
