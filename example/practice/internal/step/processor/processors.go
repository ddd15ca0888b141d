// Package processor holds the item processors of the practice jobs.
package processor

import (
	"context"
	"time"

	"github.com/tigerroll/chunkflow/example/practice/internal/domain/entity"
	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// SalaryPerYear is paid for every year of a player's age.
const SalaryPerYear = 1_000_000

// SalaryProcessor computes a player's salary from their age in the current year.
type SalaryProcessor struct {
	now func() time.Time
}

// NewSalaryProcessor creates a SalaryProcessor. A nil now uses time.Now.
func NewSalaryProcessor(now func() time.Time) *SalaryProcessor {
	if now == nil {
		now = time.Now
	}
	return &SalaryProcessor{now: now}
}

// Process implements port.ItemProcessor.
func (p *SalaryProcessor) Process(_ context.Context, in entity.Player) (entity.PlayerSalary, bool, error) {
	salary := int64(p.now().Year()-in.BirthYear) * SalaryPerYear
	return entity.PlayerSalary{
		ID:        in.ID,
		LastName:  in.LastName,
		FirstName: in.FirstName,
		Position:  in.Position,
		BirthYear: int32(in.BirthYear),
		DebutYear: int32(in.DebutYear),
		Salary:    salary,
	}, false, nil
}

// AmountMultiplier is applied by AmountProcessor.
const AmountMultiplier = 100

// AmountProcessor multiplies an amount by AmountMultiplier.
func AmountProcessor() port.ItemProcessorFunc[entity.Amount, entity.Amount] {
	return func(_ context.Context, in entity.Amount) (entity.Amount, bool, error) {
		logger.Debugf("Amount %d (%s): %d.", in.Index, in.Name, in.Amount)
		in.Amount *= AmountMultiplier
		return in, false, nil
	}
}

// PlainTextProcessor turns a plain_text row into a result_text row.
func PlainTextProcessor() port.ItemProcessorFunc[entity.PlainText, entity.ResultText] {
	return func(_ context.Context, in entity.PlainText) (entity.ResultText, bool, error) {
		return entity.ResultText{Text: "processed " + in.Text}, false, nil
	}
}

var _ port.ItemProcessor[entity.Player, entity.PlayerSalary] = (*SalaryProcessor)(nil)
