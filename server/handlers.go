package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blndgs/okto"
	"github.com/blndgs/okto/client"
	"github.com/blndgs/okto/store"
)

type googleLoginRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

type emailOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Token string `json:"token" binding:"required"`
	OTP   string `json:"otp"   binding:"required,numeric"`
}

type sessionResponse struct {
	SessionID string    `json:"sessionId"`
	UserSWA   string    `json:"userSWA"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// transferRequest names the token by CAIP-2 id plus contract address, or
// plus symbol for tokens without one.
type transferRequest struct {
	Caip2ID      string `json:"caip2Id"      binding:"required,caip2"`
	TokenAddress string `json:"tokenAddress" binding:"omitempty,eth_addr"`
	Symbol       string `json:"symbol"`
	Recipient    string `json:"recipient"    binding:"required,eth_addr"`
	Amount       string `json:"amount"       binding:"required"`
}

func (s *Server) loginGoogle(c *gin.Context) {
	var req googleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	sess, err := s.auth.Login(c.Request.Context(), req.IDToken, client.ProviderGoogle)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.startSession(c, sess)
}

func (s *Server) sendEmailOTP(c *gin.Context) {
	var req emailOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	token, err := s.auth.SendEmailOTP(c.Request.Context(), req.Email)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) verifyEmailOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	sess, err := s.auth.LoginWithEmailOTP(c.Request.Context(), req.Email, req.Token, req.OTP)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.startSession(c, sess)
}

func (s *Server) startSession(c *gin.Context, sess *client.Session) {
	id := s.newID()
	rec := &store.SessionRecord{
		AuthToken:      sess.AuthToken,
		SessionPrivKey: sess.SessionKey.PrivateKeyHex(),
		UserSWA:        sess.UserSWA,
		Nonce:          sess.Nonce,
		ClientSWA:      sess.ClientSWA,
		SessionExpiry:  sess.SessionExpiry,
		ExpiresAt:      sess.ExpiresAt,
	}
	if err := s.sessions.Put(c.Request.Context(), id, rec, sess.ExpiresAt.Sub(s.now())); err != nil {
		s.logger.Error("failed to store session", zap.Error(err))
		abortWithError(c, &okto.Error{Kind: okto.KindConfiguration, Message: "session store unavailable", Err: err})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{SessionID: id, UserSWA: sess.UserSWA, ExpiresAt: sess.ExpiresAt})
}

func (s *Server) logout(c *gin.Context) {
	if err := s.sessions.Delete(c.Request.Context(), currentSession(c).id); err != nil {
		abortWithError(c, &okto.Error{Kind: okto.KindConfiguration, Message: "session store unavailable", Err: err})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) session(c *gin.Context) {
	sess := currentSession(c)
	info, err := s.client.VerifySession(c.Request.Context(), sess.cred.AuthToken).Unwrap()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId":      sess.id,
		"userSWA":        sess.cred.UserSWA,
		"sessionAddress": sess.cred.SessionKey.Address().Hex(),
		"expiresAt":      sess.cred.ExpiresAt,
		"backend":        info,
	})
}

func (s *Server) dashboard(c *gin.Context) {
	d := s.client.LoadDashboard(c.Request.Context(), currentSession(c).cred.AuthToken)
	c.JSON(http.StatusOK, gin.H{
		"stats":     d.Stats(),
		"portfolio": d.Portfolio.Data,
		"wallets":   d.Wallets.Data,
		"nfts":      d.NFTs.Data,
		"activity":  d.Activity.Data,
	})
}

// respond writes the data of a successful result or its error.
func respond[T any](c *gin.Context, r client.Result[T]) {
	data, err := r.Unwrap()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) wallets(c *gin.Context) {
	respond(c, s.client.Wallets(c.Request.Context(), currentSession(c).cred.AuthToken))
}

func (s *Server) networks(c *gin.Context) {
	respond(c, s.client.SupportedNetworks(c.Request.Context(), currentSession(c).cred.AuthToken))
}

func (s *Server) tokens(c *gin.Context) {
	respond(c, s.client.SupportedTokens(c.Request.Context(), currentSession(c).cred.AuthToken))
}

func (s *Server) portfolio(c *gin.Context) {
	respond(c, s.client.Portfolio(c.Request.Context(), currentSession(c).cred.AuthToken))
}

func (s *Server) activity(c *gin.Context) {
	respond(c, s.client.PortfolioActivity(c.Request.Context(), currentSession(c).cred.AuthToken))
}

func (s *Server) nfts(c *gin.Context) {
	respond(c, s.client.PortfolioNFTs(c.Request.Context(), currentSession(c).cred.AuthToken))
}

func (s *Server) orders(c *gin.Context) {
	respond(c, s.client.Orders(c.Request.Context(), currentSession(c).cred.AuthToken))
}

func (s *Server) transferableTokens(c *gin.Context) {
	tokens, err := s.orchestrator.TransferableTokens(c.Request.Context(), currentSession(c).cred.AuthToken)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (s *Server) transferToken(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	sess := currentSession(c)
	tokens, err := s.orchestrator.TransferableTokens(c.Request.Context(), sess.cred.AuthToken)
	if err != nil {
		abortWithError(c, err)
		return
	}
	token, ok := findToken(tokens, &req)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": &okto.Error{Kind: okto.KindEncoding, Message: "token not held on " + req.Caip2ID}})
		return
	}
	receipt, err := s.orchestrator.TransferToken(c.Request.Context(), sess.cred, &client.TokenTransfer{
		Token:     *token,
		Recipient: req.Recipient,
		Amount:    req.Amount,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func findToken(tokens []client.TransferableToken, req *transferRequest) (*client.TransferableToken, bool) {
	for i := range tokens {
		t := &tokens[i]
		if t.Caip2ID != req.Caip2ID {
			continue
		}
		switch {
		case req.TokenAddress != "":
			if strings.EqualFold(t.TokenAddress, req.TokenAddress) {
				return t, true
			}
		case req.Symbol != "":
			if strings.EqualFold(t.Symbol, req.Symbol) {
				return t, true
			}
		case t.IsPrimary:
			return t, true
		}
	}
	return nil, false
}

func (s *Server) transferRaw(c *gin.Context) {
	var req okto.RawTransactionDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	receipt, err := s.orchestrator.TransferRaw(c.Request.Context(), currentSession(c).cred, req.Caip2ID, req.Transactions)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) listJobs(c *gin.Context) {
	if s.jobs == nil {
		c.JSON(http.StatusOK, []okto.Job{})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		bindError(c, errors.New("limit must be a non-negative integer"))
		return
	}
	jobs, err := s.jobs.List(c.Request.Context(), currentSession(c).cred.UserSWA, limit)
	if err != nil {
		abortWithError(c, &okto.Error{Kind: okto.KindConfiguration, Message: "job store unavailable", Err: err})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// jobStatus reports the backend order for the job, refreshing the ledger.
// Ledger entries are only shown to the session whose wallet sent them.
func (s *Server) jobStatus(c *gin.Context) {
	jobID := c.Param("jobId")
	order, err := s.orchestrator.JobStatus(c.Request.Context(), currentSession(c).cred.AuthToken, jobID)
	if errors.Is(err, client.ErrOrderNotFound) {
		if job := s.localJob(c, jobID); job != nil {
			c.JSON(http.StatusOK, gin.H{"job": job})
			return
		}
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": &okto.Error{Kind: okto.KindNetwork, Message: err.Error()}})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "job": s.localJob(c, jobID)})
}

func (s *Server) localJob(c *gin.Context, jobID string) *okto.Job {
	if s.jobs == nil {
		return nil
	}
	job, err := s.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		return nil
	}
	if !sameAddress(job.Sender, currentSession(c).cred.UserSWA) {
		return nil
	}
	return job
}

func sameAddress(a, b string) bool {
	return common.IsHexAddress(a) && common.IsHexAddress(b) && common.HexToAddress(a) == common.HexToAddress(b)
}
