package okto

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type IntentType string

const (
	TokenTransferIntent  IntentType = "TOKEN_TRANSFER"
	RawTransactionIntent IntentType = "RAW_TRANSACTION"
)

type JobStatus string

// Local ledger statuses. Anything reported by the backend order history is
// stored verbatim.
const (
	JobEstimated  JobStatus = "ESTIMATED"
	JobSubmitted  JobStatus = "SUBMITTED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobSuccessful JobStatus = "SUCCESSFUL"
	JobFailed     JobStatus = "FAILED"
)

// ParseJobStatus normalizes a status reported by the backend, which may
// arrive in any case.
func ParseJobStatus(s string) JobStatus {
	return JobStatus(strings.ToUpper(strings.TrimSpace(s)))
}

// Terminal reports whether no further status change is expected.
func (s JobStatus) Terminal() bool {
	return s == JobSuccessful || s == JobFailed
}

// DefaultGasPrice is the fee sent as gasDetails on every estimate, 1 gwei.
const DefaultGasPrice = "0x3b9aca00"

type GasDetails struct {
	MaxFeePerGas         string `json:"maxFeePerGas"         binding:"required,uint_string"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas" binding:"required,uint_string"`
}

func DefaultGasDetails() GasDetails {
	return GasDetails{MaxFeePerGas: DefaultGasPrice, MaxPriorityFeePerGas: DefaultGasPrice}
}

// TokenTransferDetails moves amount base units of tokenAddress, or of the
// native token when tokenAddress is empty.
type TokenTransferDetails struct {
	RecipientWalletAddress string `json:"recipientWalletAddress" binding:"required,eth_addr"`
	Caip2ID                string `json:"caip2Id"                binding:"required,caip2"`
	TokenAddress           string `json:"tokenAddress"           binding:"omitempty,eth_addr"`
	Amount                 string `json:"amount"                 binding:"required,uint_string"`
}

type RawTransaction struct {
	Data  string `json:"data"`
	From  string `json:"from"  binding:"required,eth_addr"`
	To    string `json:"to"    binding:"required,eth_addr"`
	Value string `json:"value" binding:"omitempty,uint_string"`
}

type RawTransactionDetails struct {
	Caip2ID      string           `json:"caip2Id"      binding:"required,caip2"`
	Transactions []RawTransaction `json:"transactions" binding:"required,min=1,dive"`
}

// EstimateRequest is the body of POST /estimate. Details holds either
// TokenTransferDetails or RawTransactionDetails according to Type.
type EstimateRequest struct {
	Type          IntentType `json:"type"          binding:"required,intent_type"`
	JobID         string     `json:"jobId"         binding:"required"`
	GasDetails    GasDetails `json:"gasDetails"`
	PaymasterData string     `json:"paymasterData" binding:"required"`
	Details       any        `json:"details"       binding:"required"`
}

// Caip2ID returns the chain the request targets.
func (r *EstimateRequest) Caip2ID() string {
	switch d := r.Details.(type) {
	case TokenTransferDetails:
		return d.Caip2ID
	case *TokenTransferDetails:
		return d.Caip2ID
	case RawTransactionDetails:
		return d.Caip2ID
	case *RawTransactionDetails:
		return d.Caip2ID
	default:
		return ""
	}
}

// Job is one submitted intent as recorded by the local ledger.
type Job struct {
	ID              string     `json:"jobId"`
	Type            IntentType `json:"type"`
	Caip2ID         string     `json:"caip2Id"`
	Sender          string     `json:"sender,omitempty"`
	UserOpHash      string     `json:"userOpHash,omitempty"`
	TransactionHash string     `json:"transactionHash,omitempty"`
	Status          JobStatus  `json:"status"`
	Reason          string     `json:"reason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// ToJSON serializes the Job using "github.com/goccy/go-json".
func (j *Job) ToJSON() (string, error) {
	jsonData, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("failed to marshal Job into JSON: %w", err)
	}
	return string(jsonData), nil
}

func (j *Job) String() string {
	return fmt.Sprintf("Job(ID: %s, Type: %s, Chain: %s, Status: %s, UserOpHash: %s, TxHash: %s)",
		j.ID, j.Type, j.Caip2ID, j.Status, j.UserOpHash, j.TransactionHash)
}

// Custom validation for Ethereum address using go-playground validator.
func validEthAddress(fl validator.FieldLevel) bool {
	address := fl.Field().String()
	return common.IsHexAddress(address)
}

// validCAIP2 accepts any well formed CAIP-2 identifier; eip155 references
// must also be positive chain IDs.
func validCAIP2(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	id, err := ParseCAIP2(value)
	if err != nil {
		return false
	}
	if id.Namespace == NamespaceEIP155 {
		_, err = ExtractChainID(value)
		return err == nil
	}
	return true
}

// validUintString checks for a non-negative decimal or 0x-hex integer.
func validUintString(fl validator.FieldLevel) bool {
	_, err := ParseBigInt(fl.Field().String())
	return err == nil && fl.Field().String() != ""
}

func validIntentType(fl validator.FieldLevel) bool {
	switch IntentType(fl.Field().String()) {
	case TokenTransferIntent, RawTransactionIntent:
		return true
	default:
		return false
	}
}

// Initialization of custom validators.
func NewValidator() error {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {

		if err := v.RegisterValidation("eth_addr", validEthAddress); err != nil {
			return fmt.Errorf("failed to register validator for eth_addr: %w", err)
		}

		if err := v.RegisterValidation("caip2", validCAIP2); err != nil {
			return fmt.Errorf("failed to register validator for caip2: %w", err)
		}

		if err := v.RegisterValidation("uint_string", validUintString); err != nil {
			return fmt.Errorf("failed to register validator for 'uint_string': %w", err)
		}

		if err := v.RegisterValidation("intent_type", validIntentType); err != nil {
			return fmt.Errorf("failed to register validator for IntentType: %w", err)
		}
	}
	return nil
}
