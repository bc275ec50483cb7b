package solvedto

// Frame types sent by the browser over the websocket.
const (
	ClientPress   = "press"
	ClientRelease = "release"
	ClientPenalty = "penalty"
	ClientReset   = "reset"
)

type ClientFrame struct {
	Type    string `json:"type"`
	Penalty string `json:"penalty,omitempty"`
}

type TimerState struct {
	State       string  `json:"state"`
	ElapsedMs   float64 `json:"elapsed_ms"`
	Display     string  `json:"display"`
	LastSolveMs int64   `json:"last_solve_ms"`
	KeyDown     bool    `json:"key_down"`
}

type Record struct {
	Kind    string `json:"kind"`
	ValueMs int64  `json:"value_ms"`
	Display string `json:"formatted_value"`
}

type ServerFrame struct {
	Type     string      `json:"type"`
	State    *TimerState `json:"state,omitempty"`
	Scramble string      `json:"scramble,omitempty"`
	Record   *Record     `json:"record,omitempty"`
	Solve    *Solve      `json:"solve,omitempty"`
	Message  string      `json:"message,omitempty"`
}
