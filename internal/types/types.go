package types

type DepositStatus string

type WithdrawalStatus string

type TradeStatus string

type TradeResult string

type TradeSide string

type ActivityType string

type ActivityCategory string

type ActivityStatus string

const (
	DepositStatusPending  DepositStatus = "pending"
	DepositStatusApproved DepositStatus = "approved"
	DepositStatusRejected DepositStatus = "rejected"
	DepositStatusAdjusted DepositStatus = "adjusted"
)

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

const (
	TradeStatusActive   TradeStatus = "active"
	TradeStatusFinished TradeStatus = "finished"
)

const (
	TradeResultWin  TradeResult = "WIN"
	TradeResultLoss TradeResult = "LOSS"
)

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

const (
	ActivityDepositRequest   ActivityType = "DEPOSIT_REQUEST"
	ActivityDepositApproved  ActivityType = "DEPOSIT_APPROVED"
	ActivityDepositRejected  ActivityType = "DEPOSIT_REJECTED"
	ActivityDepositAdjusted  ActivityType = "DEPOSIT_ADJUSTED"
	ActivityWithdrawRequest  ActivityType = "WITHDRAW_REQUEST"
	ActivityWithdrawApproved ActivityType = "WITHDRAW_APPROVED"
	ActivityWithdrawRejected ActivityType = "WITHDRAW_REJECTED"
	ActivityConvert          ActivityType = "CONVERT"
	ActivityTradeOpen        ActivityType = "TRADE_OPEN"
	ActivityTradeSettled     ActivityType = "TRADE_SETTLED"
	ActivityBalanceEdit      ActivityType = "BALANCE_EDIT"
)

const (
	ActivityCategoryDeposit    ActivityCategory = "deposit"
	ActivityCategoryWithdrawal ActivityCategory = "withdrawal"
	ActivityCategoryConversion ActivityCategory = "conversion"
	ActivityCategoryTrade      ActivityCategory = "trade"
	ActivityCategoryAdjustment ActivityCategory = "adjustment"
)

const (
	ActivityStatusPending   ActivityStatus = "pending"
	ActivityStatusCompleted ActivityStatus = "completed"
	ActivityStatusRejected  ActivityStatus = "rejected"
)
