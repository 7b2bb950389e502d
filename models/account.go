package models

// Account describes a trade account announced by the broker.
type Account struct {
	TradeAccount  string   `json:"trdacc"`
	FirmID        string   `json:"firmid"`
	Classes       []string `json:"classList"`
	MarginClasses []string `json:"mainMarginClasses"`
	LimitsInLots  bool     `json:"limitsInLots"`
	LimitKinds    []string `json:"limitKinds"`
}
