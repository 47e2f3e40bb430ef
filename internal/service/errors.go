package service

import "errors"

// 佣金相关错误
var (
	ErrCommissionPaymentInvalid   = errors.New("commission payment event invalid")
	ErrCommissionRefundInvalid    = errors.New("commission refund event invalid")
	ErrCommissionEventNotFound    = errors.New("commission event not found")
	ErrCommissionNotDue           = errors.New("commission hold period not elapsed")
	ErrCommissionPolicyInvalid    = errors.New("commission policy invalid")
	ErrCommissionLedgerFetch      = errors.New("commission ledger fetch failed")
	ErrCommissionLedgerWrite      = errors.New("commission ledger write failed")
	ErrAffiliateCodeInvalid       = errors.New("affiliate code invalid")
	ErrAttributionReferralPersist = errors.New("attribution referral persist failed")
)
