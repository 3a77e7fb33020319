package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/google/uuid"
)

// GenerationResult reports one run of the recurrence generator.
type GenerationResult struct {
	Month     model.Month `json:"month"`
	Created   []string    `json:"created"`
	Templates int         `json:"templates"`
}

// GenerateMonth makes sure every template due on or before month has exactly
// one instance tagged with that month. Running it again is a no-op, so
// transient storage failures are retried.
func (l *Ledger) GenerateMonth(ctx context.Context, userID string, month model.Month) (*GenerationResult, error) {
	var result *GenerationResult
	err := common.WithRetry(ctx, func() error {
		var err error
		result, err = l.generateMonth(ctx, userID, month)
		return err
	}, l.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", month, err)
	}

	if len(result.Created) > 0 {
		slog.Info("Generated recurring transactions",
			"user_id", userID,
			"month", month.String(),
			"created", len(result.Created),
			"templates", result.Templates)
	}
	return result, nil
}

func (l *Ledger) generateMonth(ctx context.Context, userID string, month model.Month) (*GenerationResult, error) {
	result := &GenerationResult{Month: month}

	var staged []model.Transaction
	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		templates, err := tx.ListTemplates(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list templates: %w", err)
		}
		result.Templates = len(templates)

		// A template whose own month is the viewed month is that month's row.
		due := make([]model.Transaction, 0, len(templates))
		ids := make([]string, 0, len(templates))
		for _, template := range templates {
			if model.MonthOf(template.TransactionDate).Before(month) {
				due = append(due, template)
				ids = append(ids, template.ID)
			}
		}
		if len(due) == 0 {
			return nil, nil
		}

		existing, err := tx.TemplatesWithInstance(ctx, userID, month, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing instances: %w", err)
		}

		staged = staged[:0]
		for i := range due {
			if existing[due[i].ID] {
				continue
			}
			staged = append(staged, l.newInstance(&due[i], month))
		}
		if len(staged) == 0 {
			return nil, nil
		}

		created, err := tx.InsertInstances(ctx, staged)
		if err != nil {
			return nil, fmt.Errorf("failed to insert instances: %w", err)
		}
		result.Created = created

		return instanceChanges(staged, created), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// newInstance copies the recurring fields of template into a pending row for month.
func (l *Ledger) newInstance(template *model.Transaction, month model.Month) model.Transaction {
	parentID := template.ID
	referenceMonth := month
	instance := model.Transaction{
		ID:                  uuid.NewString(),
		UserID:              template.UserID,
		Title:               template.Title,
		Amount:              template.Amount,
		Type:                template.Type,
		Category:            template.Category,
		PaymentMethod:       template.PaymentMethod,
		TransactionDate:     month.SafeDate(template.EffectiveRecurrenceDay(), l.loc),
		IsFixed:             true,
		ParentTransactionID: &parentID,
		ReferenceMonth:      &referenceMonth,
		Version:             1,
		CreatedAt:           l.now().UTC(),
	}
	if template.AccountID != nil {
		accountID := *template.AccountID
		instance.AccountID = &accountID
	}
	if template.RecurrenceDay != nil {
		day := *template.RecurrenceDay
		instance.RecurrenceDay = &day
	}
	return instance
}

func instanceChanges(staged []model.Transaction, created []string) []feed.Change {
	written := make(map[string]bool, len(created))
	for _, id := range created {
		written[id] = true
	}

	changes := make([]feed.Change, 0, len(created))
	for i := range staged {
		if written[staged[i].ID] {
			changes = append(changes, feed.TransactionChange(feed.OpInsert, &staged[i]))
		}
	}
	return changes
}

// GenerateRange runs the generator for every month from..to inclusive,
// calling progress after each month.
func (l *Ledger) GenerateRange(ctx context.Context, userID string, from, to model.Month, progress func(*GenerationResult)) ([]GenerationResult, error) {
	if to.Before(from) {
		return nil, common.NewValidationError("to", fmt.Errorf("%s is before %s", to, from))
	}

	var results []GenerationResult
	for month := from; !to.Before(month); month = month.AddMonths(1) {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := l.GenerateMonth(ctx, userID, month)
		if err != nil {
			return results, err
		}
		results = append(results, *result)
		if progress != nil {
			progress(result)
		}
	}
	return results, nil
}

// MonthView is what a client needs to render one month.
type MonthView struct {
	Page       *service.TransactionPage `json:"page"`
	Duplicates DuplicateSummary         `json:"duplicates"`
	Month      model.Month              `json:"month"`
	Generated  int                      `json:"generated"`
}

// LoadMonth runs the generator for month and then returns the requested page
// of that month's transactions with duplicate flags.
func (l *Ledger) LoadMonth(ctx context.Context, userID string, month model.Month, limit, offset int) (*MonthView, error) {
	generated, err := l.GenerateMonth(ctx, userID, month)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = l.pageSize
	}

	page, err := l.storage.ListTransactions(ctx, userID, service.TransactionFilter{
		StartDate: month.FirstDate(l.loc),
		EndDate:   month.LastDate(l.loc),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", month, err)
	}

	return &MonthView{
		Month:      month,
		Page:       page,
		Generated:  len(generated.Created),
		Duplicates: FindDuplicates(page.Transactions).Summary(),
	}, nil
}
