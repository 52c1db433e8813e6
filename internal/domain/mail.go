package domain

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

type DistortionFinishedMailData struct {
	RunID          int64   `json:"runID"`
	Status         string  `json:"status"`
	DistortedText  string  `json:"distortedText"`
	PrivacyScore   float64 `json:"privacyScore"`
	UsabilityScore float64 `json:"usabilityScore"`
	Fitness        float64 `json:"fitness"`
	ErrorMessage   string  `json:"errorMessage"`
}
