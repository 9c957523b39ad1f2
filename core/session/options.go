package session

import "github.com/invopop/jsonschema"

// Config describes one session to be opened against the remote speech model.
type Config struct {
	Model string
	Voice string

	// InputTranscription and OutputTranscription request incremental
	// transcripts of user and model speech respectively.
	InputTranscription  bool
	OutputTranscription bool

	// Instruction is the combined instruction text: operator persona plus an
	// optional knowledge excerpt.
	Instruction string

	// Actions declares the client-side side effects the remote model may
	// request.
	Actions []ActionDecl
}

// ActionDecl declares one invocable action to the remote model.
type ActionDecl struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

type ConfigOption func(*Config)

func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{
		InputTranscription:  true,
		OutputTranscription: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithModel(model string) ConfigOption {
	return func(c *Config) { c.Model = model }
}

func WithVoice(voice string) ConfigOption {
	return func(c *Config) { c.Voice = voice }
}

func WithInstruction(instruction string) ConfigOption {
	return func(c *Config) { c.Instruction = instruction }
}

func WithTranscription(input, output bool) ConfigOption {
	return func(c *Config) {
		c.InputTranscription = input
		c.OutputTranscription = output
	}
}

func WithActions(actions ...ActionDecl) ConfigOption {
	return func(c *Config) { c.Actions = append(c.Actions, actions...) }
}
