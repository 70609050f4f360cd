package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"strata/internal/core/entity"
	"strata/internal/core/id"
)

type account struct {
	entity.Base
	Code    string          `db:"code" json:"code"`
	Name    string          `db:"name" json:"name"`
	Balance decimal.Decimal `db:"balance" json:"balance"`
	Note    string          `db:"-" json:"note"`
	private string
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[account]()

	expected := []string{"id", "version", "created_at", "updated_at", "code", "name", "balance"}
	for _, col := range expected {
		assert.Contains(t, cols, col)
	}
	assert.NotContains(t, cols, "-")
	assert.Len(t, cols, len(expected))
}

func TestStructToMap(t *testing.T) {
	now := time.Now().UTC()
	acc := account{
		Base: entity.Base{
			ID:        id.New(),
			Version:   5,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Code:    "CASH",
		Name:    "Cash account",
		Balance: decimal.NewFromInt(100),
		Note:    "ignored",
		private: "ignored",
	}

	m := StructToMap(acc)

	assert.Equal(t, acc.ID, m["id"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, "CASH", m["code"])
	assert.Equal(t, "Cash account", m["name"])
	assert.Equal(t, decimal.NewFromInt(100), m["balance"])
	_, hasNote := m["note"]
	assert.False(t, hasNote)
}

func TestStructToMap_PointerAndNonStruct(t *testing.T) {
	acc := &account{Code: "CASH"}
	m := StructToMap(acc)
	assert.Equal(t, "CASH", m["code"])

	assert.Nil(t, StructToMap(42))
}
