package domain

// Broker-agnostic types for order execution.
// These types abstract away broker-specific implementations (IBKR, paper, etc.)

// OrderAction is the side of an order
type OrderAction string

const (
	ActionBuy  OrderAction = "BUY"
	ActionSell OrderAction = "SELL"
)

// OrderType is the execution style requested from the broker
type OrderType string

const (
	// OrderTypeMarket executes immediately at the prevailing price
	OrderTypeMarket OrderType = "MKT"
	// OrderTypeMarketOnClose executes in the closing auction
	OrderTypeMarketOnClose OrderType = "MOC"
)

// Position represents a holding in an account
type Position struct {
	Symbol      string  `json:"symbol"`
	Shares      float64 `json:"shares"`
	MarketValue float64 `json:"market_value"`
}

// OpenOrder represents an order the broker has not finished executing
type OpenOrder struct {
	OrderID  string      `json:"order_id"`
	Symbol   string      `json:"symbol"`
	Action   OrderAction `json:"action"`
	Quantity int64       `json:"quantity"`
	Type     OrderType   `json:"type"`
	Status   string      `json:"status"`
}

// RebalanceOrder is an order computed by the rebalance engine.
// It lives for a single rebalance run and is never persisted.
type RebalanceOrder struct {
	Symbol      string      `json:"symbol"`
	Action      OrderAction `json:"action"`
	Quantity    int64       `json:"quantity"`
	Price       float64     `json:"price"`
	MarketValue float64     `json:"market_value"`
}

// SignedQuantity returns the quantity with SELLs negative
func (o RebalanceOrder) SignedQuantity() int64 {
	if o.Action == ActionSell {
		return -o.Quantity
	}
	return o.Quantity
}

// PlacedOrder pairs a rebalance order with the broker's order id
type PlacedOrder struct {
	RebalanceOrder
	OrderID string `json:"order_id"`
}
