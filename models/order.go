package models

import "time"

// Order is the latest known state of a broker order, keyed by Number.
type Order struct {
	Number    string    `json:"number"`
	Time      time.Time `json:"dt"`
	ClassCode string    `json:"class_code"`
	SecCode   string    `json:"sec_code"`
	IsSell    bool      `json:"is_sell"`
	Account   string    `json:"account"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Volume    float64   `json:"volume"`
	Status    string    `json:"status"`
}

// Side returns "sell" or "buy".
func (o Order) Side() string {
	if o.IsSell {
		return "sell"
	}
	return "buy"
}
