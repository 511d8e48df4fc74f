package reporting

// Funnel counts calls at each stage of the outbound funnel.
type Funnel struct {
	Called     int `json:"called"`
	Talked     int `json:"talked"`
	Interested int `json:"interested"`
	Lead       int `json:"lead"`
}

// Analytics is the dashboard summary. Rates are percentages rounded to two
// decimals; avg_duration is seconds over calls with a known duration.
type Analytics struct {
	TotalCalls   int     `json:"total_calls"`
	TalkRate     float64 `json:"talk_rate"`
	InterestRate float64 `json:"interest_rate"`
	AvgDuration  float64 `json:"avg_duration"`
	Funnel       Funnel  `json:"funnel"`
}
