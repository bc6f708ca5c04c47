package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderUpdated       = "order.updated"
	TopicOrderStatusChanged = "order.status_changed"
	TopicOrderDeleted       = "order.deleted"
	TopicResourceAdjusted   = "resource.adjusted"
)

// Partition key = entity id so every event of one order (or one resource)
// stays in order.
func PartitionKey(id string) []byte { return []byte(id) }
