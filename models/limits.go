package models

// StockLimit is the position limit for one security.
type StockLimit struct {
	SecCode  string  `json:"sec_code"`
	FirmID   string  `json:"firmid,omitempty"`
	Account  string  `json:"account,omitempty"`
	Balance  float64 `json:"cbal"`
	Limit    float64 `json:"clim"`
	Blocked  float64 `json:"block"`
	AvgPrice float64 `json:"avg"`
	Scale    int     `json:"qty_scale,omitempty"`
}

// MoneyLimit is the cash limit for one currency (and settlement tag).
type MoneyLimit struct {
	Currency    string  `json:"currency"`
	Tag         string  `json:"tag,omitempty"`
	FirmID      string  `json:"firmid,omitempty"`
	Balance     float64 `json:"cbal"`
	Limit       float64 `json:"clim"`
	OpenBalance float64 `json:"obal"`
	OpenLimit   float64 `json:"olim"`
	Blocked     float64 `json:"block"`
	LimitKind   int     `json:"limit_kind"`
	Scale       int     `json:"qty_scale,omitempty"`
}

// Key identifies a money limit: currency alone, or "currency/tag".
func (m MoneyLimit) Key() string {
	if m.Tag == "" {
		return m.Currency
	}
	return m.Currency + "/" + m.Tag
}
