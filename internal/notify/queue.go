package notify

import (
	"sync"
	"time"

	"github.com/angelmondragon/storefront-session/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
)

const defaultCapacity = 20

// Notification is a transient, user-facing message about a cart or wishlist action.
type Notification struct {
	Kind    enums.NotificationKind  `json:"kind"`
	Level   enums.NotificationLevel `json:"level"`
	Code    string                  `json:"code,omitempty"`
	Message string                  `json:"message"`
	At      time.Time               `json:"at"`
}

// Notifier is what the session managers report through.
type Notifier interface {
	Notify(n Notification)
}

// Queue is a bounded FIFO of notifications; when full the oldest entry is dropped.
type Queue struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	now      func() time.Time
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Queue{capacity: capacity, now: time.Now}
}

func (q *Queue) Notify(n Notification) {
	if n.At.IsZero() {
		n.At = q.now().UTC()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == q.capacity {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
	}
	q.items = append(q.items, n)
}

// Drain returns and clears the pending notifications, oldest first.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		return []Notification{}
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func Success(kind enums.NotificationKind, message string) Notification {
	return Notification{Kind: kind, Level: enums.NotificationLevelSuccess, Message: message}
}

func Info(kind enums.NotificationKind, message string) Notification {
	return Notification{Kind: kind, Level: enums.NotificationLevelInfo, Message: message}
}

// FromError builds an error notification. Coded errors contribute their code and,
// when the code allows it, their own message instead of the generic one.
func FromError(kind enums.NotificationKind, err error) Notification {
	n := Notification{Kind: kind, Level: enums.NotificationLevelError, Message: "something went wrong"}
	typed := pkgerrors.As(err)
	if typed == nil {
		return n
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	n.Code = string(typed.Code())
	n.Message = meta.PublicMessage
	if meta.DetailsAllowed && typed.Message() != "" {
		n.Message = typed.Message()
	}
	if typed.Code() == pkgerrors.CodeSyncFailure || typed.Code() == pkgerrors.CodeAuthRequired {
		n.Level = enums.NotificationLevelWarning
	}
	return n
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(Notification) {}
