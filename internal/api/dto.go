package api

// OpenRequest is the body of POST /positions and /broker/orders.
type OpenRequest struct {
	Direction string `json:"direction" binding:"required"`
}

// AutoTradeRequest is the body of PUT /autotrade.
type AutoTradeRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ConnectRequest is the body of POST /broker/connect.
type ConnectRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// SettingsPatch is a partial settings update; absent fields keep their value.
type SettingsPatch struct {
	Symbol                 *string         `json:"symbol"`
	RiskPercentage         *float64        `json:"riskPercentage"`
	StopLossPercent        *float64        `json:"stopLossPercent"`
	TakeProfitPercent      *float64        `json:"takeProfitPercent"`
	PartialTakePercentage  *float64        `json:"partialTakePercentage"`
	MaxTakeProfit          *int            `json:"maxTakeProfit"`
	MaxTrades              *int            `json:"maxTrades"`
	AutoTrading            *bool           `json:"autoTrading"`
	MinSignalStrength      *float64        `json:"minSignalStrength"`
	ConfirmationCount      *int            `json:"confirmationCount"`
	TradingIntervalSeconds *float64        `json:"tradingIntervalSeconds"`
	Indicators             map[string]bool `json:"indicators"`
	BrokerMirror           *bool           `json:"brokerMirror"`
}
