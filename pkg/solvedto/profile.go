package solvedto

import "time"

// Metric is one stored record; Display is "N/A" when Value is nil.
type Metric struct {
	Value    *int64     `json:"value_ms"`
	Display  string     `json:"display"`
	Date     *time.Time `json:"date,omitempty"`
	Scramble string     `json:"scramble,omitempty"`
}

type Profile struct {
	TotalSolves int       `json:"total_solves"`
	Single      Metric    `json:"pb_single"`
	Ao5         Metric    `json:"pb_ao5"`
	Ao12        Metric    `json:"pb_ao12"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stats is the live view of the current session history.
type Stats struct {
	Count    int      `json:"count"`
	Best     string   `json:"best"`
	Ao5      string   `json:"ao5"`
	Ao12     string   `json:"ao12"`
	Ao100    string   `json:"ao100"`
	Mean     string   `json:"mean"`
	Practice string   `json:"practice"`
	Summary  string   `json:"summary"`
	Profile  *Profile `json:"profile,omitempty"`
}
