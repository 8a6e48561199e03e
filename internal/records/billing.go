package records

import (
	"context"
	"fmt"
	"strings"

	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/repository"
	"opd/opd-service/internal/store"

	"github.com/google/uuid"
)

func (s *Service) CreateBill(ctx context.Context, input store.CreateBillInput) (models.Bill, error) {
	if len(input.Items) == 0 {
		return models.Bill{}, fmt.Errorf("%w: a bill needs at least one item", store.ErrInvalidInput)
	}
	if input.TaxRate < 0 || input.DiscountAmount < 0 {
		return models.Bill{}, fmt.Errorf("%w: tax rate and discount must not be negative", store.ErrInvalidInput)
	}
	if _, err := s.patientExists(ctx, input.PatientID); err != nil {
		return models.Bill{}, err
	}

	items := make([]models.BillItem, len(input.Items))
	subTotal := 0.0
	for i, item := range input.Items {
		if blank(item.Description) || item.Quantity <= 0 || item.UnitPrice < 0 {
			return models.Bill{}, fmt.Errorf("%w: item %d needs a description, a positive quantity and a price", store.ErrInvalidInput, i+1)
		}
		item.Description = strings.TrimSpace(item.Description)
		item.Total = round2(float64(item.Quantity) * item.UnitPrice)
		items[i] = item
		subTotal += item.Total
	}
	subTotal = round2(subTotal)
	tax := round2(subTotal * input.TaxRate)
	total := round2(subTotal + tax - input.DiscountAmount)
	if total < 0 {
		total = 0
	}
	status := models.BillUnpaid
	if total == 0 {
		status = models.BillPaid
	}

	now := s.timestamp()
	bill := models.Bill{
		BillID:         uuid.NewString(),
		BillNumber:     fmt.Sprintf("BILL-%d", now.UnixMilli()),
		PatientID:      input.PatientID,
		VisitID:        input.VisitID,
		Date:           now,
		Items:          items,
		SubTotal:       subTotal,
		TaxAmount:      tax,
		DiscountAmount: round2(input.DiscountAmount),
		TotalAmount:    total,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.sync.Update(ctx, []string{repository.KeyBills}, func(tx *datasync.Tx) error {
		bills, err := s.repos.Bills.Load(tx)
		if err != nil {
			return err
		}
		return s.repos.Bills.Store(tx, append(bills, bill))
	})
	if err != nil {
		return models.Bill{}, err
	}
	s.logger.Info().Str("bill_number", bill.BillNumber).Float64("total", bill.TotalAmount).Msg("bill created")
	return bill, nil
}

// RecordPayment stores the payment and settles the bill in one update. The
// bill becomes PAID once payments cover the total, PARTIALLY_PAID before.
func (s *Service) RecordPayment(ctx context.Context, input store.RecordPaymentInput) (models.Bill, models.Payment, error) {
	if input.Amount <= 0 || blank(input.Method) {
		return models.Bill{}, models.Payment{}, fmt.Errorf("%w: a positive amount and a method are required", store.ErrInvalidInput)
	}
	now := s.timestamp()
	payment := models.Payment{
		PaymentID:     uuid.NewString(),
		BillID:        input.BillID,
		Amount:        round2(input.Amount),
		Method:        strings.ToUpper(strings.TrimSpace(input.Method)),
		TransactionID: input.TransactionID,
		Date:          now,
		CreatedAt:     now,
	}
	var bill models.Bill
	err := s.sync.Update(ctx, []string{repository.KeyBills, repository.KeyPayments}, func(tx *datasync.Tx) error {
		bills, err := s.repos.Bills.Load(tx)
		if err != nil {
			return err
		}
		idx := -1
		for i := range bills {
			if bills[i].BillID == input.BillID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return store.ErrBillNotFound
		}
		if bills[idx].Status == models.BillPaid || bills[idx].Status == models.BillCancelled {
			return fmt.Errorf("%w: bill is %s", store.ErrInvalidState, bills[idx].Status)
		}
		payments, err := s.repos.Payments.Load(tx)
		if err != nil {
			return err
		}
		paid := 0.0
		for _, p := range payments {
			if p.BillID == input.BillID {
				paid += p.Amount
			}
		}
		if round2(paid+payment.Amount) > bills[idx].TotalAmount {
			return fmt.Errorf("%w: payment exceeds outstanding %.2f", store.ErrInvalidInput, round2(bills[idx].TotalAmount-paid))
		}
		paid = round2(paid + payment.Amount)
		if paid >= bills[idx].TotalAmount {
			bills[idx].Status = models.BillPaid
		} else {
			bills[idx].Status = models.BillPartiallyPaid
		}
		bills[idx].UpdatedAt = now
		bill = bills[idx]
		if err := s.repos.Bills.Store(tx, bills); err != nil {
			return err
		}
		return s.repos.Payments.Store(tx, append(payments, payment))
	})
	if err != nil {
		return models.Bill{}, models.Payment{}, err
	}
	s.logger.Info().Str("bill_number", bill.BillNumber).Str("status", bill.Status).Msg("payment recorded")
	return bill, payment, nil
}

func (s *Service) ListBills(ctx context.Context, patientID string) ([]models.Bill, error) {
	bills, err := s.repos.Bills.All(ctx)
	if err != nil {
		return nil, err
	}
	return filter(bills, func(b models.Bill) bool { return patientID == "" || b.PatientID == patientID }), nil
}
