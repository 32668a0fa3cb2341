package circulation

import (
	"errors"
	"math"
	"time"

	"library-circulation/pkg/apperrors"
	"library-circulation/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeeAssessor computes and records fines. Late fees are charged in whole
// days past due, rounded up, at a flat daily rate. It never touches loan
// status: the loan manager owns that write path.
type FeeAssessor struct {
	db        *gorm.DB
	DailyRate float64
	notifier  NotificationDispatcher
}

// assessLateReturn records a LATE_RETURN fine for a loan being returned at
// returnedAt, already known to be past due, and stamps the amount on the
// loan. Runs inside the return transaction.
func (f *FeeAssessor) assessLateReturn(tx *gorm.DB, loan *models.Loan, returnedAt time.Time) error {
	daysLate := int(math.Ceil(returnedAt.Sub(loan.DueDate).Hours() / 24))
	if daysLate < 1 {
		daysLate = 1
	}
	amount := float64(daysLate) * f.DailyRate

	fine := models.Fine{
		FineUid:    uuid.New().String(),
		LoanUid:    loan.LoanUid,
		Username:   loan.Username,
		Amount:     amount,
		FineType:   models.FineTypeLateReturn,
		Status:     models.FineStatusPending,
		IssuedDate: returnedAt,
	}
	if err := tx.Create(&fine).Error; err != nil {
		return apperrors.Persistence("create late fine", err)
	}
	loan.LateFee = &amount
	return nil
}

// CreateLostFine is the administrative entry point, independent of the
// return flow.
func (f *FeeAssessor) CreateLostFine(username, loanUid string, amount float64, description string) (models.Fine, error) {
	return f.createLostFine(f.db, username, loanUid, amount, description)
}

func (f *FeeAssessor) createLostFine(tx *gorm.DB, username, loanUid string, amount float64, description string) (models.Fine, error) {
	fine := models.Fine{
		FineUid:     uuid.New().String(),
		LoanUid:     loanUid,
		Username:    username,
		Amount:      amount,
		FineType:    models.FineTypeLostItem,
		Status:      models.FineStatusPending,
		Description: description,
		IssuedDate:  time.Now(),
	}
	if err := tx.Create(&fine).Error; err != nil {
		return models.Fine{}, apperrors.Persistence("create lost fine", err)
	}
	return fine, nil
}

// MarkFinePaid is the terminal transition for a fine. Settled fines (paid,
// waived, cancelled) cannot be paid again.
func (f *FeeAssessor) MarkFinePaid(fineUid string, paidDate time.Time) (models.Fine, error) {
	fine, err := f.findFine(fineUid)
	if err != nil {
		return models.Fine{}, err
	}
	if fine.Status != models.FineStatusPending && fine.Status != models.FineStatusNotified {
		return models.Fine{}, apperrors.Violation(apperrors.CodeInvalidFineStatus, "fine %s is %s, cannot be paid", fineUid, fine.Status)
	}
	fine.Status = models.FineStatusPaid
	fine.PaidDate = &paidDate
	if err := f.db.Save(&fine).Error; err != nil {
		return models.Fine{}, apperrors.Persistence("save paid fine", err)
	}
	return fine, nil
}

func (f *FeeAssessor) WaiveFine(fineUid string) (models.Fine, error) {
	fine, err := f.findFine(fineUid)
	if err != nil {
		return models.Fine{}, err
	}
	if fine.Status != models.FineStatusPending && fine.Status != models.FineStatusNotified {
		return models.Fine{}, apperrors.Violation(apperrors.CodeInvalidFineStatus, "fine %s is %s, cannot be waived", fineUid, fine.Status)
	}
	fine.Status = models.FineStatusWaived
	if err := f.db.Save(&fine).Error; err != nil {
		return models.Fine{}, apperrors.Persistence("save waived fine", err)
	}
	return fine, nil
}

// RemindUnpaid sends a payment reminder for PENDING fines issued before the
// cutoff and moves them to NOTIFIED so a fine is reminded once. Returns the
// number of reminders requested.
func (f *FeeAssessor) RemindUnpaid(cutoff time.Time) (int, error) {
	var fines []models.Fine
	err := f.db.Where("status = ? AND issued_date < ?", models.FineStatusPending, cutoff).
		Find(&fines).Error
	if err != nil {
		return 0, apperrors.Persistence("list unpaid fines", err)
	}

	reminded := 0
	for i := range fines {
		fines[i].Status = models.FineStatusNotified
		if err := f.db.Save(&fines[i]).Error; err != nil {
			return reminded, apperrors.Persistence("save notified fine", err)
		}
		f.notifier.SendPaymentReminder(fines[i].Username, fines[i].FineUid, fines[i].Amount)
		reminded++
	}
	return reminded, nil
}

func (f *FeeAssessor) findFine(fineUid string) (models.Fine, error) {
	var fine models.Fine
	err := f.db.Where("fine_uid = ?", fineUid).First(&fine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fine, apperrors.NotFound("fine", fineUid)
	}
	if err != nil {
		return fine, apperrors.Persistence("find fine", err)
	}
	return fine, nil
}
