package services

import "adearn-backend/internal/models"

// Broadcaster pushes committed account state to connected clients.
type Broadcaster interface {
	BroadcastBalance(account *models.Account)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastBalance(*models.Account) {}

func broadcasterOrNop(b Broadcaster) Broadcaster {
	if b == nil {
		return nopBroadcaster{}
	}
	return b
}
