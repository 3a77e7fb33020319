package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/ledger"
	"github.com/Veraticus/ledger-must-balance/internal/model"
)

// MonthGenerator materializes recurring instances for one month.
type MonthGenerator interface {
	GenerateMonth(ctx context.Context, userID string, month model.Month) (*ledger.GenerationResult, error)
	Location() *time.Location
}

// GenerateJob keeps the current month, and optionally the months after it,
// materialized for a set of users.
type GenerateJob struct {
	generator MonthGenerator
	now       func() time.Time
	users     []string
	ahead     int
}

// NewGenerateJob creates a job generating the current month plus ahead
// further months for each user.
func NewGenerateJob(generator MonthGenerator, ahead int, users ...string) *GenerateJob {
	return &GenerateJob{
		generator: generator,
		users:     users,
		ahead:     max(ahead, 0),
		now:       time.Now,
	}
}

// Name identifies the job in logs.
func (j *GenerateJob) Name() string {
	return "generate_recurring"
}

// Run generates every configured month. A failing user does not stop the others.
func (j *GenerateJob) Run(ctx context.Context) error {
	current := model.MonthOf(j.now().In(j.generator.Location()))

	var errs []error
	created := 0
	for _, userID := range j.users {
		for i := 0; i <= j.ahead; i++ {
			month := current.AddMonths(i)
			result, err := j.generator.GenerateMonth(ctx, userID, month)
			if err != nil {
				errs = append(errs, fmt.Errorf("user %s month %s: %w", userID, month, err))
				continue
			}
			created += len(result.Created)
		}
	}

	slog.Debug("Generation job finished", "users", len(j.users), "created", created, "failures", len(errs))
	return errors.Join(errs...)
}
