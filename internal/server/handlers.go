package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mivaca/backend/internal/auth"
	"github.com/mivaca/backend/internal/billing"
	"go.uber.org/zap"
)

func (h *httpHandler) handleCreateSession(c *gin.Context) {
	var request createSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}

	session, err := h.billing.CreateSession(c.Request.Context(), billing.CreateSessionCommand{
		Name:     request.Name,
		HostName: request.HostName,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.IssueParticipantToken(c.Request.Context(), auth.Participant{
		SessionID:     session.ID,
		ParticipantID: session.HostID,
		Role:          auth.RoleHost,
	})
	if err != nil {
		h.logger.Error("failed to issue host token", zap.String("session_id", session.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session":   toSessionPayload(session),
		"total":     moneyJSON(h.billing.Total(session.ID)),
		"hostId":    session.HostID,
		"hostToken": token,
		"expiresIn": expiresIn,
		"tokenType": "Bearer",
	})
}

func (h *httpHandler) handleGetSession(c *gin.Context) {
	view, err := h.billing.GetSession(c.Request.Context(), c.Param(sessionIDParam))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": toSessionPayload(view.Session),
		"total":   moneyJSON(view.Total),
	})
}

func (h *httpHandler) handleSummary(c *gin.Context) {
	summary, err := h.billing.Summary(c.Request.Context(), c.Param(sessionIDParam))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSummaryPayload(summary))
}

func (h *httpHandler) handleJoinSession(c *gin.Context) {
	var request joinSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}

	diner, err := h.billing.JoinSession(c.Request.Context(), c.Param(sessionIDParam), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.IssueParticipantToken(c.Request.Context(), auth.Participant{
		SessionID:     diner.SessionID,
		ParticipantID: diner.ID,
		Role:          auth.RoleDiner,
	})
	if err != nil {
		h.logger.Error("failed to issue diner token", zap.String("session_id", diner.SessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"diner":      toDinerPayload(diner),
		"dinerToken": token,
		"expiresIn":  expiresIn,
		"tokenType":  "Bearer",
	})
}

func (h *httpHandler) handleListDiners(c *gin.Context) {
	diners, err := h.billing.ListDiners(c.Request.Context(), c.Param(sessionIDParam))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"diners": toDinerPayloads(diners)})
}

func (h *httpHandler) handleListPayments(c *gin.Context) {
	payments, collected, err := h.billing.ListPayments(c.Request.Context(), c.Param(sessionIDParam))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payments":       toPaymentPayloads(payments),
		"totalCollected": moneyJSON(collected),
	})
}

func (h *httpHandler) handleAddLineItem(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request addLineItemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}
	unitPrice, ok := parseMoney(request.UnitPrice)
	if !ok {
		respondInvalidRequest(c)
		return
	}
	dinerID := request.DinerID
	if dinerID == "" && !actor.IsHost() {
		dinerID = actor.ParticipantID
	}

	sessionID := c.Param(sessionIDParam)
	item, err := h.billing.AddLineItem(c.Request.Context(), actor, billing.AddLineItemCommand{
		SessionID:   sessionID,
		DinerID:     dinerID,
		Description: request.Description,
		UnitPrice:   unitPrice,
		Quantity:    request.Quantity,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"item":  toLineItemPayload(item),
		"total": moneyJSON(h.billing.Total(sessionID)),
	})
}

func (h *httpHandler) handleAddSharedItem(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request addSharedItemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}
	unitPrice, ok := parseMoney(request.UnitPrice)
	if !ok {
		respondInvalidRequest(c)
		return
	}

	sessionID := c.Param(sessionIDParam)
	items, err := h.billing.AddSharedItem(c.Request.Context(), actor, billing.AddSharedItemCommand{
		SessionID:   sessionID,
		DinerIDs:    request.DinerIDs,
		Description: request.Description,
		UnitPrice:   unitPrice,
		Quantity:    request.Quantity,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"items": toLineItemPayloads(items),
		"total": moneyJSON(h.billing.Total(sessionID)),
	})
}

func (h *httpHandler) handleRemoveLineItem(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	sessionID := c.Param(sessionIDParam)
	removed, err := h.billing.RemoveLineItem(c.Request.Context(), actor, sessionID, c.Param("itemId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"removed": removed,
		"total":   moneyJSON(h.billing.Total(sessionID)),
	})
}

func (h *httpHandler) handleRemoveDistributionGroup(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	sessionID := c.Param(sessionIDParam)
	removed, err := h.billing.RemoveDistributionGroup(c.Request.Context(), actor, sessionID, c.Param("groupId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"removed": removed,
		"total":   moneyJSON(h.billing.Total(sessionID)),
	})
}

func (h *httpHandler) handleRecordPayment(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request recordPaymentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}
	amount, ok := parseMoney(request.Amount)
	if !ok {
		respondInvalidRequest(c)
		return
	}
	dinerID := request.DinerID
	if dinerID == "" && !actor.IsHost() {
		dinerID = actor.ParticipantID
	}

	sessionID := c.Param(sessionIDParam)
	payment, err := h.billing.RecordPayment(c.Request.Context(), actor, billing.RecordPaymentCommand{
		SessionID: sessionID,
		DinerID:   dinerID,
		PayerName: request.PayerName,
		Amount:    amount,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	_, collected, err := h.billing.ListPayments(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment":        toPaymentPayload(payment),
		"totalCollected": moneyJSON(collected),
	})
}

func (h *httpHandler) handleSetTipPercent(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request tipPercentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}
	percent, ok := parseMoney(request.TipPercent)
	if !ok {
		respondInvalidRequest(c)
		return
	}

	sessionID := c.Param(sessionIDParam)
	if err := h.billing.SetTipPercent(c.Request.Context(), actor, sessionID, percent); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   moneyJSON(h.billing.Total(sessionID)),
	})
}

func (h *httpHandler) handleCloseBill(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request billTotalRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}
	billTotal, ok := parseMoney(request.BillTotal)
	if !ok {
		respondInvalidRequest(c)
		return
	}

	sessionID := c.Param(sessionIDParam)
	distributed, err := h.billing.CloseBill(c.Request.Context(), actor, billing.CloseBillCommand{
		SessionID:  sessionID,
		BillTotal:  billTotal,
		Distribute: request.DistributeDifference,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"total":            moneyJSON(h.billing.Total(sessionID)),
		"distributedItems": toLineItemPayloads(distributed),
	})
}

func (h *httpHandler) handleMergeDiners(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request mergeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}
	err := h.billing.MergeDiners(c.Request.Context(), actor, c.Param(sessionIDParam), request.FromDinerID, request.ToDinerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleSetPaymentQRImage(c *gin.Context) {
	var request paymentQRRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}
	h.applySessionSetting(c, func(actor billing.Actor, sessionID string) error {
		return h.billing.SetPaymentQRImage(c.Request.Context(), actor, sessionID, request.ImageRef)
	})
}

func (h *httpHandler) handleClearPaymentQRImage(c *gin.Context) {
	h.applySessionSetting(c, func(actor billing.Actor, sessionID string) error {
		return h.billing.SetPaymentQRImage(c.Request.Context(), actor, sessionID, "")
	})
}

func (h *httpHandler) handleSetBankKey(c *gin.Context) {
	var request bankKeyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}
	h.applySessionSetting(c, func(actor billing.Actor, sessionID string) error {
		return h.billing.SetBankKey(c.Request.Context(), actor, sessionID, request.BankKey)
	})
}

func (h *httpHandler) handleClearBankKey(c *gin.Context) {
	h.applySessionSetting(c, func(actor billing.Actor, sessionID string) error {
		return h.billing.SetBankKey(c.Request.Context(), actor, sessionID, "")
	})
}

func (h *httpHandler) applySessionSetting(c *gin.Context, apply func(actor billing.Actor, sessionID string) error) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := apply(actor, c.Param(sessionIDParam)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) requireActor(c *gin.Context) (billing.Actor, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return billing.Actor{}, false
	}
	return actor, true
}
