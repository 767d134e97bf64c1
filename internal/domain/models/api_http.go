package models

// Requests for HTTP endpoints. Defined in domain for reuse by handlers and tests.

type TransitionsRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,uppercase,max=12"`
	Limit  int    `query:"limit" json:"limit" default:"52" validate:"gte=1,lte=520"`
}

type RatioHistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"52" validate:"gte=1,lte=520"`
}

type TriggerCycleRequest struct {
	RefreshBaseline bool `json:"refresh_baseline"`
}
