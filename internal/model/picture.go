package model

// Picture is the ground truth for one day. Pictures are managed outside the
// application and are read-only here.
type Picture struct {
	Day          Day     `json:"id"`
	Path         string  `json:"path"`
	OriginalDate string  `json:"original_date"`
	TimeTaken    string  `json:"time_taken"` // "HH:MM"
	Location     *string `json:"location,omitempty"`
}
