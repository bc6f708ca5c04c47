package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCanceled   Status = "canceled"
	StatusReturned   Status = "returned"
)

var Statuses = []Status{
	StatusPending, StatusInProgress, StatusShipped,
	StatusDelivered, StatusCanceled, StatusReturned,
}

func ParseStatus(s string) (Status, error) {
	return parseEnum("order_status", s, Statuses)
}

// Mutable reports whether the customizable fields may still change.
func (s Status) Mutable() bool { return s == StatusPending }

func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCanceled, StatusReturned:
		return true
	}
	return false
}
