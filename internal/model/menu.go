package model

// MenuItem is a sellable item.
type MenuItem struct {
	ID          int64
	Name        string
	Description string
	Price       Money
	Category    string
	Available   bool
}

// Menu is the list served by GET /menu.
type Menu struct {
	Categories []string
	Items      []MenuItem
}

// Item looks up a menu item by id.
func (m Menu) Item(id int64) (MenuItem, bool) {
	for _, it := range m.Items {
		if it.ID == id {
			return it, true
		}
	}
	return MenuItem{}, false
}

// TableStatus is the floor state of a table.
type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
	TableReserved  TableStatus = "reserved"
	TableCleaning  TableStatus = "cleaning"
)

// Valid reports whether s is a known table status.
func (s TableStatus) Valid() bool {
	switch s {
	case TableAvailable, TableOccupied, TableReserved, TableCleaning:
		return true
	}
	return false
}

// Table is a dining table on the floor plan.
type Table struct {
	ID     int64
	Number string
	Seats  int
	Status TableStatus
}
