package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/blndgs/okto"
)

var ErrOrderNotFound = errors.New("order not found")

// JobRecorder keeps a local ledger of submitted jobs. Recording is best
// effort: a failing recorder never fails a transfer.
type JobRecorder interface {
	Save(ctx context.Context, job *okto.Job) error
	UpdateStatus(ctx context.Context, jobID string, status okto.JobStatus, reason, txHash string) error
}

// TransferableToken is a portfolio token joined with its network.
type TransferableToken struct {
	PortfolioToken
	Caip2ID string `json:"caip_id"`
	ChainID int64  `json:"chain_id"`
}

// TokenTransfer is a user-facing transfer request. Amount is a human
// decimal amount of Token.
type TokenTransfer struct {
	Token     TransferableToken
	Recipient string
	Amount    string
}

// TransferReceipt describes a submitted job.
// TransferReceipt is keyed by the job id sent with the estimate, which is
// also the ledger key. BackendJobID is set only when execute reports a
// different one.
type TransferReceipt struct {
	JobID           string         `json:"jobId"`
	BackendJobID    string         `json:"backendJobId,omitempty"`
	UserOpHash      string         `json:"userOpHash"`
	TransactionHash string         `json:"transactionHash,omitempty"`
	Status          okto.JobStatus `json:"status"`
}

// Orchestrator runs intents through estimate, sign and execute. Each call
// is a single attempt under a fresh job id.
type Orchestrator struct {
	client   *Client
	cfg      *okto.Config
	jobs     JobRecorder
	logger   *zap.Logger
	now      func() time.Time
	newJobID func() string
}

type OrchestratorOption func(*Orchestrator)

func WithJobRecorder(r JobRecorder) OrchestratorOption {
	return func(o *Orchestrator) {
		o.jobs = r
	}
}

func WithOrchestratorLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func NewOrchestrator(c *Client, cfg *okto.Config, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:   c,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		newJobID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Estimate asks the backend to build the user operation for req.
func (o *Orchestrator) Estimate(ctx context.Context, authToken string, req *okto.EstimateRequest) (*okto.UnsignedUserOperation, error) {
	data, err := o.client.Estimate(ctx, authToken, req).Unwrap()
	if err != nil {
		return nil, err
	}
	if data.UserOps.Sender == "" {
		return nil, &okto.Error{Kind: okto.KindEstimation, Message: estimateEndpoint.fallback}
	}
	return &data.UserOps, nil
}

// Sign signs op with the session key for chainID.
func (o *Orchestrator) Sign(op *okto.UnsignedUserOperation, sessionKey okto.Signer, chainID *big.Int) (*okto.SignedUserOperation, error) {
	return okto.SignUserOp(op, sessionKey, o.cfg.EntryPoint, chainID)
}

// Execute submits a signed user operation.
func (o *Orchestrator) Execute(ctx context.Context, authToken string, op *okto.SignedUserOperation) (*ExecuteResponseData, error) {
	data, err := o.client.Execute(ctx, authToken, op).Unwrap()
	if err != nil {
		return nil, err
	}
	return &data, nil
}

// TransferToken sends t.Amount of t.Token to t.Recipient.
func (o *Orchestrator) TransferToken(ctx context.Context, session *okto.SessionCredential, t *TokenTransfer) (*TransferReceipt, error) {
	if !common.IsHexAddress(t.Recipient) {
		return nil, &okto.Error{Kind: okto.KindEncoding, Message: "recipient: " + okto.ErrInvalidAddress.Error(), Err: okto.ErrInvalidAddress}
	}
	decimals, err := okto.TokenDecimals(t.Token.Caip2ID, t.Token.IsPrimary, t.Token.Precision)
	if err != nil {
		return nil, err
	}
	units, err := okto.ToBaseUnits(t.Amount, decimals)
	if err != nil {
		return nil, err
	}
	if units.Sign() == 0 {
		return nil, &okto.Error{Kind: okto.KindEncoding, Message: "amount must be greater than zero", Err: okto.ErrInvalidAmount}
	}

	tokenAddress := t.Token.TokenAddress
	if t.Token.IsPrimary {
		tokenAddress = ""
	}
	chainID, err := tokenChainID(&t.Token)
	if err != nil {
		return nil, err
	}

	details := okto.TokenTransferDetails{
		RecipientWalletAddress: t.Recipient,
		Caip2ID:                t.Token.Caip2ID,
		TokenAddress:           tokenAddress,
		Amount:                 units.String(),
	}
	return o.submit(ctx, session, okto.TokenTransferIntent, details, t.Token.Caip2ID, chainID)
}

// TransferRaw submits arbitrary calls on caip2ID.
func (o *Orchestrator) TransferRaw(ctx context.Context, session *okto.SessionCredential, caip2ID string, txs []okto.RawTransaction) (*TransferReceipt, error) {
	if len(txs) == 0 {
		return nil, &okto.Error{Kind: okto.KindEncoding, Message: "at least one transaction is required"}
	}
	chainID, err := okto.ExtractChainID(caip2ID)
	if err != nil {
		return nil, okto.AsError(err, okto.KindEncoding)
	}
	details := okto.RawTransactionDetails{Caip2ID: caip2ID, Transactions: txs}
	return o.submit(ctx, session, okto.RawTransactionIntent, details, caip2ID, chainID)
}

func (o *Orchestrator) submit(ctx context.Context, session *okto.SessionCredential, intent okto.IntentType, details any, caip2ID string, chainID *big.Int) (*TransferReceipt, error) {
	if session == nil || session.SessionKey == nil {
		return nil, okto.NewError(okto.KindKey, okto.ErrMissingPrivateKey)
	}
	clientKey, err := o.cfg.ClientSigner()
	if err != nil {
		return nil, err
	}

	jobID := o.newJobID()
	log := o.logger.With(zap.String("jobId", jobID), zap.String("type", string(intent)), zap.String("caip2Id", caip2ID))

	validUntil := o.now().Add(o.cfg.TransferSponsorshipTTL).Unix()
	sponsorship, err := okto.SignPaymasterData(clientKey, common.HexToAddress(o.cfg.ClientSWA), jobID, uint64(validUntil), 0)
	if err != nil {
		return nil, err
	}

	req := &okto.EstimateRequest{
		Type:          intent,
		JobID:         jobID,
		GasDetails:    okto.DefaultGasDetails(),
		PaymasterData: sponsorship.Encoded,
		Details:       details,
	}
	op, err := o.Estimate(ctx, session.AuthToken, req)
	if err != nil {
		log.Info("estimate failed", zap.Error(err))
		return nil, err
	}

	signed, err := o.Sign(op, session.SessionKey, chainID)
	if err != nil {
		return nil, err
	}
	hash, err := op.Hash(o.cfg.EntryPoint, chainID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	o.record(ctx, log, &okto.Job{
		ID:         jobID,
		Type:       intent,
		Caip2ID:    caip2ID,
		Sender:     op.Sender,
		UserOpHash: hash.Hex(),
		Status:     okto.JobEstimated,
		CreatedAt:  now,
		UpdatedAt:  now,
	})

	res, err := o.Execute(ctx, session.AuthToken, signed)
	if err != nil {
		log.Info("execute failed", zap.Error(err))
		o.updateStatus(ctx, log, jobID, okto.JobFailed, err.Error(), "")
		return nil, err
	}

	receipt := &TransferReceipt{
		JobID:           jobID,
		UserOpHash:      hash.Hex(),
		TransactionHash: res.TransactionHash,
		Status:          okto.JobSubmitted,
	}
	if res.JobID != "" && res.JobID != jobID {
		receipt.BackendJobID = res.JobID
		log.Warn("backend reported a different job id", zap.String("backendJobId", res.JobID))
	}
	if status := okto.ParseJobStatus(res.Status); status != "" {
		receipt.Status = status
	}
	o.updateStatus(ctx, log, jobID, receipt.Status, "", receipt.TransactionHash)
	log.Info("job submitted", zap.String("userOpHash", receipt.UserOpHash), zap.String("status", string(receipt.Status)))
	return receipt, nil
}

// JobStatus looks jobID up in the order history and syncs the ledger with
// what the backend reports.
func (o *Orchestrator) JobStatus(ctx context.Context, authToken, jobID string) (*Order, error) {
	history, err := o.client.Orders(ctx, authToken).Unwrap()
	if err != nil {
		return nil, err
	}
	order, ok := history.Find(jobID)
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrOrderNotFound)
	}
	var txHash string
	if len(order.TransactionHash) > 0 {
		txHash = order.TransactionHash[0]
	}
	o.updateStatus(ctx, o.logger.With(zap.String("jobId", jobID)), jobID, okto.ParseJobStatus(order.Status), order.Reason, txHash)
	return order, nil
}

// TransferableTokens lists the portfolio tokens with a positive balance,
// each joined with its network's CAIP-2 id and chain id.
func (o *Orchestrator) TransferableTokens(ctx context.Context, authToken string) ([]TransferableToken, error) {
	portfolio, err := o.client.Portfolio(ctx, authToken).Unwrap()
	if err != nil {
		return nil, err
	}
	networks, err := o.client.SupportedNetworks(ctx, authToken).Unwrap()
	if err != nil {
		return nil, err
	}
	return JoinTokens(portfolio.GroupTokens, networks), nil
}

// JoinTokens flattens group tokens and attaches network data by network id.
// Tokens on unknown networks or with no balance are dropped.
func JoinTokens(groups []PortfolioGroupToken, networks []Network) []TransferableToken {
	byID := make(map[string]Network, len(networks))
	for _, n := range networks {
		byID[n.NetworkID] = n
	}

	var out []TransferableToken
	for _, g := range groups {
		for _, t := range g.Tokens {
			n, ok := byID[t.NetworkID]
			if !ok {
				continue
			}
			balance, err := cast.ToFloat64E(strings.ReplaceAll(t.Balance, ",", ""))
			if err != nil || balance <= 0 {
				continue
			}
			chainID, _ := cast.ToInt64E(n.ChainID)
			out = append(out, TransferableToken{PortfolioToken: t, Caip2ID: n.CaipID, ChainID: chainID})
		}
	}
	return out
}

func tokenChainID(t *TransferableToken) (*big.Int, error) {
	if t.ChainID > 0 {
		return big.NewInt(t.ChainID), nil
	}
	chainID, err := okto.ExtractChainID(t.Caip2ID)
	if err != nil {
		return nil, okto.AsError(err, okto.KindEncoding)
	}
	return chainID, nil
}

func (o *Orchestrator) record(ctx context.Context, log *zap.Logger, job *okto.Job) {
	if o.jobs == nil {
		return
	}
	if err := o.jobs.Save(ctx, job); err != nil {
		log.Warn("failed to record job", zap.Error(err))
	}
}

func (o *Orchestrator) updateStatus(ctx context.Context, log *zap.Logger, jobID string, status okto.JobStatus, reason, txHash string) {
	if o.jobs == nil {
		return
	}
	if err := o.jobs.UpdateStatus(ctx, jobID, status, reason, txHash); err != nil {
		log.Warn("failed to update job status", zap.Error(err))
	}
}
