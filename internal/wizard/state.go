package wizard

import "sync"

type State int

const (
	Idle State = iota
	AwaitingImage
	AwaitingPartCount
	AwaitingFitMode
	AwaitingConfirmation
	AwaitingPayment
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingImage:
		return "awaiting_image"
	case AwaitingPartCount:
		return "awaiting_part_count"
	case AwaitingFitMode:
		return "awaiting_fit_mode"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case AwaitingPayment:
		return "awaiting_payment"
	}
	return "unknown"
}

// userLocks hands out one mutex per user and forgets it once nobody holds
// or waits for it.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*userLock)
	}
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
