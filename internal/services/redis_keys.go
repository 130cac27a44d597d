package services

import "time"

const (
	KeyAccount             = "account:%s"
	KeyAccounts            = "accounts"
	KeyAccountsByEarnings  = "accounts:earnings"
	KeyStatsWithdrawn      = "stats:withdrawn"
	KeyAccountTransactions = "account:%s:transactions"
	KeyAccountWithdrawals  = "account:%s:withdrawals"
	KeyTransaction         = "transaction:%s"
	KeyTransactions        = "transactions"
	KeyWithdrawal          = "withdrawal:%s"
	KeyWithdrawals         = "withdrawals"
	KeyWithdrawalsByStatus = "withdrawals:status:%s"
	KeyLink                = "link:%s"
	KeyLinkClicks          = "link:%s:clicks"
	KeyLinks               = "links"
	KeyClick               = "click:%s"
	KeyClicks              = "clicks"
	KeyUserClicks          = "user:%s:clicks"
	KeyUserLinkRewards     = "user:%s:link:%s:rewards"
	KeyClickSeen           = "click:seen:%s:%s:%d"
	KeyClickProcessing     = "click:processing:%s"
	KeyRateLimit           = "ratelimit:%s:%s"

	TTLClickProcessing = 60 * time.Second
	TTLRewardIndex     = 48 * time.Hour

	maxWatchRetries = 10
	scanPageSize    = 100
)
