// Package entity holds the records read and written by the practice jobs.
package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Player is one line of player-list.txt.
type Player struct {
	ID        string
	LastName  string
	FirstName string
	Position  string
	BirthYear int
	DebutYear int
}

// MapPlayer maps the fields of a player line: id, last name, first name, position, birth
// year and debut year.
func MapPlayer(_ int, fields []string) (Player, error) {
	if len(fields) != 6 {
		return Player{}, fmt.Errorf("want 6 fields, got %d", len(fields))
	}
	birth, err := strconv.Atoi(strings.TrimSpace(fields[4]))
	if err != nil {
		return Player{}, fmt.Errorf("birth year: %w", err)
	}
	debut, err := strconv.Atoi(strings.TrimSpace(fields[5]))
	if err != nil {
		return Player{}, fmt.Errorf("debut year: %w", err)
	}
	return Player{
		ID:        fields[0],
		LastName:  fields[1],
		FirstName: fields[2],
		Position:  fields[3],
		BirthYear: birth,
		DebutYear: debut,
	}, nil
}

// PlayerSalary is a Player with the salary computed from its age.
type PlayerSalary struct {
	ID        string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName  string `parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstName string `parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Position  string `parquet:"name=position, type=BYTE_ARRAY, convertedtype=UTF8"`
	BirthYear int32  `parquet:"name=birth_year, type=INT32"`
	DebutYear int32  `parquet:"name=debut_year, type=INT32"`
	Salary    int64  `parquet:"name=salary, type=INT64"`
}

func (p PlayerSalary) String() string {
	return fmt.Sprintf("PlayerSalary{id=%s, name=%s %s, position=%s, birthYear=%d, debutYear=%d, salary=%d}",
		p.ID, p.FirstName, p.LastName, p.Position, p.BirthYear, p.DebutYear, p.Salary)
}
