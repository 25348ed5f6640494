package ipc

// Commands understood by the session owner.
const (
	CommandStatus  = "status"
	CommandTrigger = "trigger"
)

type Request struct {
	Command string `json:"command"`
	Trigger string `json:"trigger,omitempty"`
}

type Response struct {
	OK      bool    `json:"ok"`
	State   string  `json:"state,omitempty"`
	Mode    string  `json:"mode,omitempty"`
	Verdict string  `json:"verdict,omitempty"`
	Partial string  `json:"partial,omitempty"`
	Level   float64 `json:"level,omitempty"`
	Session string  `json:"session,omitempty"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
}
