package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/query"
)

// Transfer moves req.Amount from the payer to the receiver in one unit of
// work. Both rows are locked before the balance check, so concurrent
// transfers on the same account are serialised.
func (c *Coordinator) Transfer(ctx context.Context, req domain.TransferRequest) Result {
	return c.run(ctx, unit{
		name: "transfer",
		attrs: []any{
			"payer", req.PayerID,
			"receiver", req.ReceiverID,
			"amount", req.Amount.String(),
			"initiator", req.Initiator.PersonID,
		},
		check: req.Validate,
		ops:   []query.Operation{query.OpLockAccount, query.OpDebitAccount, query.OpCreditAccount},
		validate: func(ctx context.Context, uow UnitOfWork, stmts statements) error {
			payer, receiver, err := lockPair(ctx, uow, stmts[query.OpLockAccount], req.PayerID, req.ReceiverID)
			if err != nil {
				return err
			}
			// Foreign accounts look absent, as they do on reads.
			if !req.Initiator.MayDebit(payer.OwnerID) {
				return fmt.Errorf("%w: account %d", domain.ErrAccountNotFound, payer.ID)
			}
			if payer.Balance.LessThan(req.Amount) {
				return fmt.Errorf("%w: account %d holds %s, transfer needs %s",
					domain.ErrInsufficientFunds, payer.ID, domain.FormatMoney(payer.Balance), domain.FormatMoney(req.Amount))
			}
			if !receiver.CanReceive() {
				return fmt.Errorf("%w: receiver account %d is %s, owner is %s",
					domain.ErrForbiddenStatus, receiver.ID, receiver.Status, receiver.OwnerStatus)
			}
			if !payer.CanSend() {
				return fmt.Errorf("%w: payer account %d is %s", domain.ErrForbiddenStatus, payer.ID, payer.Status)
			}
			return nil
		},
		apply: func(ctx context.Context, uow UnitOfWork, stmts statements) error {
			amount := domain.FormatMoney(req.Amount)
			if err := execOne(ctx, uow, stmts[query.OpDebitAccount], query.Values{
				query.ParamAccountID: req.PayerID,
				query.ParamAmount:    amount,
			}); err != nil {
				return fmt.Errorf("debit account %d: %w", req.PayerID, err)
			}
			if err := execOne(ctx, uow, stmts[query.OpCreditAccount], query.Values{
				query.ParamAccountID: req.ReceiverID,
				query.ParamAmount:    amount,
			}); err != nil {
				return fmt.Errorf("credit account %d: %w", req.ReceiverID, err)
			}
			return nil
		},
	})
}

// lockPair locks both accounts in ascending id order so two transfers over
// the same pair cannot deadlock.
func lockPair(ctx context.Context, uow UnitOfWork, lock query.Statement, payerID, receiverID int64) (payer, receiver domain.AccountState, err error) {
	first, second := payerID, receiverID
	if first > second {
		first, second = second, first
	}
	a, err := uow.LockAccount(ctx, lock, query.Values{query.ParamAccountID: first})
	if err != nil {
		return payer, receiver, fmt.Errorf("lock account %d: %w", first, err)
	}
	b, err := uow.LockAccount(ctx, lock, query.Values{query.ParamAccountID: second})
	if err != nil {
		return payer, receiver, fmt.Errorf("lock account %d: %w", second, err)
	}
	if a.ID == payerID {
		return a, b, nil
	}
	return b, a, nil
}

// Adjustment is an administrative balance change against bank income.
// A positive Delta refills the account from income, a negative one charges
// the account into income.
type Adjustment struct {
	AccountID int64
	Delta     decimal.Decimal
}

func (a Adjustment) Validate() error {
	if a.AccountID <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidAccountID, a.AccountID)
	}
	return domain.ValidateAmount(a.Delta.Abs())
}

// Adjust applies an Adjustment. The income row is locked before the
// account row; transfers never lock income, so no lock cycle can form.
func (c *Coordinator) Adjust(ctx context.Context, adj Adjustment) Result {
	refill := adj.Delta.IsPositive()
	amount := adj.Delta.Abs()
	return c.run(ctx, unit{
		name:  "adjustment",
		attrs: []any{"account", adj.AccountID, "delta", adj.Delta.String()},
		check: adj.Validate,
		ops: []query.Operation{
			query.OpLockIncome, query.OpLockAccount,
			query.OpIncrementIncome, query.OpDecrementIncome,
			query.OpCreditAccount, query.OpDebitAccount,
		},
		validate: func(ctx context.Context, uow UnitOfWork, stmts statements) error {
			income, err := uow.Amount(ctx, stmts[query.OpLockIncome], query.Values{})
			if err != nil {
				return fmt.Errorf("lock income: %w", err)
			}
			acct, err := uow.LockAccount(ctx, stmts[query.OpLockAccount], query.Values{query.ParamAccountID: adj.AccountID})
			if err != nil {
				return fmt.Errorf("lock account %d: %w", adj.AccountID, err)
			}
			if refill {
				if income.LessThan(amount) {
					return fmt.Errorf("%w: income %s cannot cover %s",
						domain.ErrInsufficientFunds, domain.FormatMoney(income), domain.FormatMoney(amount))
				}
				if !acct.CanReceive() {
					return fmt.Errorf("%w: account %d is %s, owner is %s",
						domain.ErrForbiddenStatus, acct.ID, acct.Status, acct.OwnerStatus)
				}
				return nil
			}
			if acct.Balance.LessThan(amount) {
				return fmt.Errorf("%w: account %d holds %s, charge needs %s",
					domain.ErrInsufficientFunds, acct.ID, domain.FormatMoney(acct.Balance), domain.FormatMoney(amount))
			}
			return nil
		},
		apply: func(ctx context.Context, uow UnitOfWork, stmts statements) error {
			money := domain.FormatMoney(amount)
			acct := query.Values{query.ParamAccountID: adj.AccountID, query.ParamAmount: money}
			income := query.Values{query.ParamAmount: money}
			if refill {
				if err := execOne(ctx, uow, stmts[query.OpDecrementIncome], income); err != nil {
					return err
				}
				return execOne(ctx, uow, stmts[query.OpCreditAccount], acct)
			}
			if err := execOne(ctx, uow, stmts[query.OpDebitAccount], acct); err != nil {
				return err
			}
			return execOne(ctx, uow, stmts[query.OpIncrementIncome], income)
		},
	})
}
