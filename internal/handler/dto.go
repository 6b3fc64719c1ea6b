package handler

import (
	"time"

	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/realtime"
)

// Orders leave the server snake_case, as the POS back office emits them.

type orderItemDTO struct {
	ID         int64   `json:"id"`
	MenuItemID int64   `json:"menu_item_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	Notes      string  `json:"notes,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

type orderDTO struct {
	ID            int64          `json:"id"`
	TableID       *int64         `json:"table_id"`
	TableNumber   *string        `json:"table_number,omitempty"`
	OrderType     string         `json:"order_type"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"payment_status"`
	Total         float64        `json:"total"`
	Version       int64          `json:"version"`
	CreatedAt     string         `json:"created_at"`
	Items         []orderItemDTO `json:"items"`
}

func toOrderDTO(o model.Order) orderDTO {
	out := orderDTO{
		ID:            o.ID,
		TableID:       o.TableID,
		OrderType:     string(o.Type),
		Status:        string(o.Status),
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total.Float(),
		Version:       o.Version,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		Items:         make([]orderItemDTO, 0, len(o.Items)),
	}
	if o.TableNumber != "" {
		n := o.TableNumber
		out.TableNumber = &n
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, orderItemDTO{
			ID:         it.ID,
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			Price:      it.UnitPrice.Float(),
			Notes:      it.Notes,
			CreatedAt:  it.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

type menuItemDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Available   bool    `json:"available"`
}

func toMenuItemDTO(m model.MenuItem) menuItemDTO {
	return menuItemDTO{ID: m.ID, Name: m.Name, Description: m.Description, Price: m.Price.Float(), Category: m.Category, Available: m.Available}
}

type tableDTO struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Seats  int    `json:"seats"`
	Status string `json:"status"`
}

type itemReq struct {
	MenuItemID int64  `json:"menuItemId"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes"`
}

type createOrderReq struct {
	TableID   *int64    `json:"tableId"`
	OrderType string    `json:"orderType"`
	Items     []itemReq `json:"items"`
}

type addItemsReq struct {
	Items []itemReq `json:"items"`
}

type statusReq struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

type menuPatchReq struct {
	Available *bool    `json:"available"`
	Price     *float64 `json:"price"`
}

type featureReq struct {
	Enabled *bool `json:"enabled"`
}

type tableStatusReq struct {
	Status string `json:"status"`
}

func orderUpdateEvent(o model.Order) realtime.OrderUpdate {
	total := o.Total.Float()
	return realtime.OrderUpdate{ID: o.ID, Status: string(o.Status), Total: &total, Version: o.Version}
}
