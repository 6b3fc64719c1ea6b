package posapi

import (
	"time"

	"github.com/iliyamo/pos-waiter/internal/model"
)

// Wire shapes of the POS server.  Orders come back snake_case; request
// bodies are camelCase.

type apiOrderItem struct {
	ID          int64   `json:"id"`
	MenuItemID  int64   `json:"menu_item_id"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
}

type apiOrder struct {
	ID            int64          `json:"id"`
	TableID       *int64         `json:"table_id"`
	TableNumber   *string        `json:"table_number,omitempty"`
	OrderType     string         `json:"order_type"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"payment_status,omitempty"`
	Total         float64        `json:"total"`
	Version       int64          `json:"version,omitempty"`
	CreatedAt     string         `json:"created_at"`
	Items         []apiOrderItem `json:"items"`
}

type apiMenuItem struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Available   bool    `json:"available"`
}

type apiMenu struct {
	Categories []string      `json:"categories"`
	Items      []apiMenuItem `json:"items"`
}

type apiTable struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Seats  int    `json:"seats,omitempty"`
	Status string `json:"status"`
}

type apiWaiter struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ItemInput is one line of a create-order or add-items body.
type ItemInput struct {
	MenuItemID int64  `json:"menuItemId"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
}

// CreateOrderInput is the body of POST /orders.
type CreateOrderInput struct {
	TableID   *int64      `json:"tableId,omitempty"`
	OrderType string      `json:"orderType"`
	Items     []ItemInput `json:"items"`
}

// ItemsFromDraft converts draft lines into request lines.
func ItemsFromDraft(draft []model.DraftItem) []ItemInput {
	out := make([]ItemInput, 0, len(draft))
	for _, d := range draft {
		out = append(out, ItemInput{MenuItemID: d.MenuItemID, Quantity: d.Quantity, Notes: d.Notes})
	}
	return out
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func mapOrder(o apiOrder) model.Order {
	out := model.Order{
		ID:            o.ID,
		TableID:       o.TableID,
		Type:          model.OrderType(o.OrderType),
		Status:        model.OrderStatus(o.Status),
		PaymentStatus: o.PaymentStatus,
		Total:         model.MoneyFromFloat(o.Total),
		Version:       o.Version,
		CreatedAt:     parseTime(o.CreatedAt),
		Items:         make([]model.OrderItem, 0, len(o.Items)),
	}
	if o.TableNumber != nil {
		out.TableNumber = *o.TableNumber
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, model.OrderItem{
			ID:         it.ID,
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  model.MoneyFromFloat(it.Price),
			Notes:      it.Notes,
			CreatedAt:  parseTime(it.CreatedAt),
		})
	}
	return out
}

func mapMenuItem(it apiMenuItem) model.MenuItem {
	return model.MenuItem{
		ID:          it.ID,
		Name:        it.Name,
		Description: it.Description,
		Price:       model.MoneyFromFloat(it.Price),
		Category:    it.Category,
		Available:   it.Available,
	}
}

func mapMenu(m apiMenu) model.Menu {
	out := model.Menu{Categories: m.Categories, Items: make([]model.MenuItem, 0, len(m.Items))}
	for _, it := range m.Items {
		out.Items = append(out.Items, mapMenuItem(it))
	}
	return out
}
