package ledger

import "time"

type TransactionRecordedEvent struct {
	TransactionID  string
	OwnerID        string
	CounterpartyID string
	PaidBy         string
	Amount         string // storage-currency amount, decimal string
	EnteredAmount  string // what the user typed, before conversion
	Currency       string // currency the user typed the amount in
	OccurredAt     time.Time
}

type PartialWriteEvent struct {
	TransactionID string
	WrittenFor    string
	FailedFor     string
	Reason        string
}

type FriendAcceptedEvent struct {
	UserID   string
	FriendID string
}
