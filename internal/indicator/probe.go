package indicator

import (
	"fmt"

	"github.com/jfreymuth/pulse"
)

// CueOutput names the sink that synthesized cues play on.
type CueOutput struct {
	ID          string
	Description string
}

// ProbeCueOutput connects to the Pulse server and resolves its default sink.
func ProbeCueOutput() (CueOutput, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("voicify-shell"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return CueOutput{}, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	sink, err := client.DefaultSink()
	if err != nil {
		return CueOutput{}, fmt.Errorf("read default sink: %w", err)
	}
	return CueOutput{ID: sink.ID(), Description: sink.Name()}, nil
}
