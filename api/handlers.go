package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/payxero/payxero/internal/apierror"
)

// StartConnect kicks off the OAuth flow by redirecting the user-agent to
// the provider's authorization endpoint.
func (a Api) StartConnect(c *gin.Context) {
	authorizeURL, err := a.px.ConnectURL(c.Request.Context())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Redirect(http.StatusFound, authorizeURL)
}

// OAuthCallback completes the authorization-code flow. A state mismatch
// terminates the request; the operator has to restart the connect flow.
func (a Api) OAuthCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")

	if err := a.px.CompleteConnect(c.Request.Context(), code, state); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

func (a Api) Disconnect(c *gin.Context) {
	if err := a.px.Disconnect(c.Request.Context()); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

func (a Api) ListDeposits(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("pagesize", "25"))
	if err != nil || pageSize < 1 {
		pageSize = 25
	}

	deposits, err := a.px.Deposits(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, deposits)
}

func (a Api) ListTransactions(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deposit id is required. pass id in the route /deposits/:id/transactions"})
		return
	}

	depositID := a.px.ResolveDepositID(c.Request.Context(), id)
	rows, err := a.px.TransactionsForDeposit(c.Request.Context(), depositID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// SendDeposit delivers one payout as a draft invoice. The id may be the
// native payout id or a legacy bank reference.
func (a Api) SendDeposit(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deposit id is required. pass id in the route /deposits/:id/send"})
		return
	}

	result := a.px.SendPayout(c.Request.Context(), id)
	if !result.OK {
		c.JSON(http.StatusBadGateway, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a Api) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, a.px.Status(c.Request.Context()))
}

func (a Api) ClearKeyNotice(c *gin.Context) {
	if err := a.px.ClearKeyNotice(c.Request.Context()); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
