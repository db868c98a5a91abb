package http

import "github.com/tapcard/terminal/internal/terminal/domain"

type LineItemDTO struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Price    int64  `json:"price" validate:"gte=0"`
}

type ProcessPaymentRequestDTO struct {
	CardID      string        `json:"cardId" validate:"required"`
	Amount      int64         `json:"amount" validate:"required,gt=0"`
	Description string        `json:"description,omitempty"`
	Items       []LineItemDTO `json:"items,omitempty" validate:"omitempty,dive"`
}

type ReloadRequestDTO struct {
	CardID      string `json:"cardId" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description,omitempty"`
}

type RegisterCustomerRequestDTO struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone,omitempty"`
	CardID    string `json:"cardId" validate:"required"`
}

type SyncRequestDTO struct {
	Force bool `json:"force"`
}

type StatusResponseDTO struct {
	Network      domain.NetworkStatus `json:"network"`
	LastSyncAt   string               `json:"lastSyncAt,omitempty"`
	PendingCount int                  `json:"pendingCount"`
	Settings     domain.Settings      `json:"settings"`
}

func toLineItems(items []LineItemDTO) []domain.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.LineItem{Name: item.Name, Quantity: item.Quantity, Price: item.Price})
	}
	return out
}
