package client

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/blndgs/okto"
)

type Wallet struct {
	ID          string `json:"id,omitempty"`
	CaipID      string `json:"caip_id,omitempty"`
	NetworkName string `json:"network_name"`
	Address     string `json:"address"`
}

type Network struct {
	CaipID             string `json:"caip_id"`
	NetworkName        string `json:"network_name"`
	ChainID            string `json:"chain_id"`
	Logo               string `json:"logo"`
	SponsorshipEnabled bool   `json:"sponsorship_enabled"`
	GsnEnabled         bool   `json:"gsn_enabled"`
	Type               string `json:"type"`
	NetworkID          string `json:"network_id"`
	OnrampEnabled      bool   `json:"onramp_enabled"`
	Whitelisted        bool   `json:"whitelisted"`
}

type SupportedToken struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    string `json:"decimals"`
	Address     string `json:"address,omitempty"`
	NetworkName string `json:"network_name,omitempty"`
}

type PortfolioToken struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	ShortName         string `json:"short_name"`
	TokenImage        string `json:"token_image"`
	TokenAddress      string `json:"token_address"`
	NetworkID         string `json:"network_id"`
	Precision         string `json:"precision"`
	NetworkName       string `json:"network_name"`
	IsPrimary         bool   `json:"is_primary"`
	Balance           string `json:"balance"`
	HoldingsPriceUsdt string `json:"holdings_price_usdt"`
	HoldingsPriceInr  string `json:"holdings_price_inr"`
}

type PortfolioGroupToken struct {
	PortfolioToken
	AggregationType string           `json:"aggregation_type"`
	Tokens          []PortfolioToken `json:"tokens"`
}

type AggregatedData struct {
	HoldingsCount         string `json:"holdings_count"`
	HoldingsPriceInr      string `json:"holdings_price_inr"`
	HoldingsPriceUsdt     string `json:"holdings_price_usdt"`
	TotalHoldingPriceInr  string `json:"total_holding_price_inr"`
	TotalHoldingPriceUsdt string `json:"total_holding_price_usdt"`
}

type PortfolioOverview struct {
	AggregatedData AggregatedData        `json:"aggregated_data"`
	GroupTokens    []PortfolioGroupToken `json:"group_tokens"`
}

type Activity struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

type Nft struct {
	TokenID  string `json:"token_id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

// Order is one entry of the order history. IntentID is the job id the
// order was submitted under.
type Order struct {
	IntentID        string   `json:"intent_id,omitempty"`
	ID              string   `json:"id,omitempty"`
	IntentType      string   `json:"intent_type,omitempty"`
	Status          string   `json:"status"`
	Reason          string   `json:"reason,omitempty"`
	Amount          string   `json:"amount,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	TransactionHash []string `json:"transaction_hash,omitempty"`
}

// OrderHistory accepts both a bare array of orders and {"items": [...]}.
type OrderHistory struct {
	Items []Order `json:"items"`
}

func (h *OrderHistory) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &h.Items)
	}
	var wrapped struct {
		Items []Order `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return err
	}
	h.Items = wrapped.Items
	return nil
}

// Find returns the order submitted under jobID.
func (h *OrderHistory) Find(jobID string) (*Order, bool) {
	for i := range h.Items {
		if h.Items[i].IntentID == jobID {
			return &h.Items[i], true
		}
	}
	return nil, false
}

type SessionInfo struct {
	IsValid   bool   `json:"is_valid"`
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthResponseData is the data of a successful /authenticate call,
// completed locally with the bearer token and session key.
type AuthResponseData struct {
	UserSWA        string `json:"userSWA"`
	Nonce          string `json:"nonce"`
	ClientSWA      string `json:"clientSWA"`
	SessionExpiry  int64  `json:"sessionExpiry"`
	AuthToken      string `json:"auth_token,omitempty"`
	SessionPrivKey string `json:"session_priv_key,omitempty"`
}

type EstimateDetails struct {
	CallGasLimit                  string `json:"callGasLimit"`
	VerificationGasLimit          string `json:"verificationGasLimit"`
	PreVerificationGas            string `json:"preVerificationGas"`
	PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit"`
	MaxFeePerGas                  string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          string `json:"maxPriorityFeePerGas"`
}

type EstimateResponseData struct {
	CallData string                     `json:"callData,omitempty"`
	Details  EstimateDetails            `json:"details"`
	UserOps  okto.UnsignedUserOperation `json:"userOps"`
}

type ExecuteResponseData struct {
	JobID           string `json:"jobId"`
	TransactionHash string `json:"transactionHash,omitempty"`
	Status          string `json:"status,omitempty"`
}

type EmailOTPResponse struct {
	Token string `json:"token"`
}

type VerifyEmailOTPResponse struct {
	AuthToken string `json:"auth_token"`
}
