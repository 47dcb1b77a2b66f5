package orders

// LineItem is one purchasable container in a completed order.
type LineItem struct {
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
}

// CompletedEvent is published by the shop when an order finishes. Each
// eligible line item names a container kind and the customer-supplied field
// values for it.
type CompletedEvent struct {
	OrderID int64      `json:"order_id"`
	Items   []LineItem `json:"items"`
}

// ItemResult records the outcome of one line item: either a generated
// container with its download link, or the error that stopped it. One
// item's failure never aborts the rest of the order.
type ItemResult struct {
	Kind        string `json:"kind"`
	ContainerID string `json:"container_id,omitempty"`
	Location    string `json:"location,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ProcessedEvent summarises an order's generation outcomes for downstream
// consumers such as the notification renderer.
type ProcessedEvent struct {
	OrderID int64        `json:"order_id"`
	Results []ItemResult `json:"results"`
}
