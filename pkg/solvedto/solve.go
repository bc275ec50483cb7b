package solvedto

import "time"

type Solve struct {
	ID        string    `json:"id"`
	TimeMs    int64     `json:"time_ms"`
	Display   string    `json:"display"`
	Penalty   string    `json:"penalty"`
	Scramble  string    `json:"scramble"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryPage struct {
	Items  []Solve `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// ScramblePreview carries the scramble and its cube net as a base64 PNG.
type ScramblePreview struct {
	Scramble    string `json:"scramble"`
	ImageBase64 string `json:"image_base64"`
}
