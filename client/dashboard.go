package client

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Dashboard holds the outcome of each dashboard read. A failed read leaves
// the others untouched.
type Dashboard struct {
	Portfolio Result[PortfolioOverview]
	Wallets   Result[[]Wallet]
	NFTs      Result[[]Nft]
	Activity  Result[[]Activity]
}

// DashboardStats is the summary shown on the dashboard.
type DashboardStats struct {
	PortfolioValue string            `json:"portfolioValue"`
	WalletCount    int               `json:"walletCount"`
	NFTCount       int               `json:"nftCount"`
	ActivityCount  int               `json:"activityCount"`
	Errors         map[string]string `json:"errors,omitempty"`
}

// LoadDashboard fetches portfolio, wallets, NFTs and activity concurrently
// and waits for all four to settle.
func (c *Client) LoadDashboard(ctx context.Context, token string) *Dashboard {
	var (
		d  Dashboard
		wg sync.WaitGroup
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		d.Portfolio = c.Portfolio(ctx, token)
	}()
	go func() {
		defer wg.Done()
		d.Wallets = c.Wallets(ctx, token)
	}()
	go func() {
		defer wg.Done()
		d.NFTs = c.PortfolioNFTs(ctx, token)
	}()
	go func() {
		defer wg.Done()
		d.Activity = c.PortfolioActivity(ctx, token)
	}()
	wg.Wait()

	for name, err := range d.errors() {
		c.logger.Info("dashboard read failed", zap.String("section", name), zap.String("error", err))
	}
	return &d
}

// Stats summarizes the dashboard. Failed reads count as zero.
func (d *Dashboard) Stats() DashboardStats {
	value := decimal.Zero
	if d.Portfolio.OK {
		raw := strings.ReplaceAll(d.Portfolio.Data.AggregatedData.TotalHoldingPriceUsdt, ",", "")
		if v, err := decimal.NewFromString(raw); err == nil {
			value = v
		}
	}
	s := DashboardStats{
		PortfolioValue: "$" + value.StringFixed(2),
		Errors:         d.errors(),
	}
	if d.Wallets.OK {
		s.WalletCount = len(d.Wallets.Data)
	}
	if d.NFTs.OK {
		s.NFTCount = len(d.NFTs.Data)
	}
	if d.Activity.OK {
		s.ActivityCount = len(d.Activity.Data)
	}
	return s
}

func (d *Dashboard) errors() map[string]string {
	errs := make(map[string]string)
	add := func(name string, ok bool, err error) {
		if !ok && err != nil {
			errs[name] = err.Error()
		}
	}
	_, pErr := d.Portfolio.Unwrap()
	add("portfolio", d.Portfolio.OK, pErr)
	_, wErr := d.Wallets.Unwrap()
	add("wallets", d.Wallets.OK, wErr)
	_, nErr := d.NFTs.Unwrap()
	add("nfts", d.NFTs.OK, nErr)
	_, aErr := d.Activity.Unwrap()
	add("activity", d.Activity.OK, aErr)
	if len(errs) == 0 {
		return nil
	}
	return errs
}
