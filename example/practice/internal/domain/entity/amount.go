package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is one line of the tab-delimited amount file.
type Amount struct {
	Index  int
	Name   string
	Amount int
}

// MapAmount maps index, name and amount fields.
func MapAmount(_ int, fields []string) (Amount, error) {
	if len(fields) != 3 {
		return Amount{}, fmt.Errorf("want 3 fields, got %d", len(fields))
	}
	index, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Amount{}, fmt.Errorf("index: %w", err)
	}
	amount, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return Amount{}, fmt.Errorf("amount: %w", err)
	}
	return Amount{Index: index, Name: fields[1], Amount: amount}, nil
}

// AmountFields extracts the written fields of a.
func AmountFields(a Amount) []string {
	return []string{strconv.Itoa(a.Index), a.Name, strconv.Itoa(a.Amount)}
}
