package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds money moved by transactions. Balance is a cached value that
// the reconciler can always rebuild from the settled transactions.
type Account struct {
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Balance   decimal.Decimal `json:"balance"`
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Color     string          `json:"color"`
	Icon      string          `json:"icon"`
}

// AccountPatch lists the user-editable account fields.
type AccountPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
	Icon  *string `json:"icon,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p AccountPatch) IsEmpty() bool {
	return p.Name == nil && p.Color == nil && p.Icon == nil
}
