package domain

// System IDs (Must match migration 000001)
const (
	// SystemAccountID is the pseudo-account that issues bonuses and receives penalties.
	SystemAccountID = "00000000-0000-0000-0000-0000000000a1"
	SystemUniID     = "SY-000"

	TxTypeTransfer = "transfer"
	TxTypeRefund   = "refund"
	TxTypeBonus    = "bonus"
	TxTypePenalty  = "penalty"

	TxStatusPending    = "pending"
	TxStatusProcessing = "processing"
	TxStatusCompleted  = "completed"
	TxStatusFailed     = "failed"
	TxStatusCancelled  = "cancelled"
	TxStatusRefunded   = "refunded"

	AuditCreated            = "created"
	AuditProcessed          = "processed"
	AuditFailed             = "failed"
	AuditCancelled          = "cancelled"
	AuditRefunded           = "refunded"
	AuditSuspiciousActivity = "suspicious_activity"

	AccountStatusActive    = "active"
	AccountStatusPending   = "pending"
	AccountStatusSuspended = "suspended"
	AccountStatusBanned    = "banned"
	AccountStatusInactive  = "inactive"

	RoleUser  = "user"
	RoleAdmin = "admin"

	RechargeStatusPending   = "pending"
	RechargeStatusApproved  = "approved"
	RechargeStatusRejected  = "rejected"
	RechargeStatusCancelled = "cancelled"

	NotifyTransferSent     = "transfer_sent"
	NotifyTransferReceived = "transfer_received"
	NotifyRefundIssued     = "refund_issued"
	NotifyRefundReceived   = "refund_received"
	NotifyBonusReceived    = "bonus_received"
	NotifyPenaltyApplied   = "penalty_applied"
	NotifyRechargeApproved = "recharge_approved"
	NotifyRechargeRejected = "recharge_rejected"
)

// Ledger bounds.
const (
	MinTransactionPoints = 1
	MaxTransactionPoints = 10000

	MinRechargePoints = 100
	MaxRechargePoints = 10000

	DefaultDailyLimit   = 1000
	DefaultMonthlyLimit = 10000

	MaxDescriptionLength = 500
)
