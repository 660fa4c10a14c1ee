package domain

import "time"

// Location identifies a store taking part in an order, either as the stock
// origin or the fulfillment destination.
type Location struct {
	StoreCode string             `json:"store_code"`
	StoreID   string             `json:"store_id"`
	Contact   ContactInformation `json:"contact"`
}

type ContactInformation struct {
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Email    string `json:"email"`
	Landline string `json:"landline,omitempty"`
	Address  string `json:"address"`
}

type Note struct {
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}
