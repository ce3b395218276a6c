package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tailorjd/tailorjd-be/internal/api/dto"
	"github.com/tailorjd/tailorjd-be/internal/api/middleware"
	"github.com/tailorjd/tailorjd-be/internal/domain"
)

// AddCredits handles POST /api/credits/admin/add-credits
// Grants credits to any user. Admin only; the route guard enforces that.
func (h *CreditsHandler) AddCredits(c *gin.Context) {
	var req dto.AddCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "Granted by admin."
	}

	balance, err := h.ledger.Credit(c.Request.Context(), req.UserID, req.Amount, reason)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}
		h.logger.Error("Failed to add credits",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to add credits",
		})
		return
	}

	h.events.CreditsChanged(c.Request.Context(), req.UserID, req.Amount, balance, reason)

	c.JSON(http.StatusOK, dto.CreditsResponse{
		UserID:        req.UserID,
		CreditBalance: balance,
	})
}

// UseCredits handles POST /api/credits/use-credits
// Spends the caller's own credits. The guarded debit makes the balance check
// and the decrement a single statement, so concurrent spends cannot overdraw.
func (h *CreditsHandler) UseCredits(c *gin.Context) {
	var req dto.UseCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	userID := middleware.UserID(c)

	reason := req.Reason
	if reason == "" {
		reason = "Spent by user."
	}

	balance, err := h.ledger.DebitGuarded(c.Request.Context(), userID, req.Amount, reason)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientCredits):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "You have insufficient credits.",
			})
		case errors.Is(err, domain.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
		default:
			h.logger.Error("Failed to use credits",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to use credits",
			})
		}
		return
	}

	h.events.CreditsChanged(c.Request.Context(), userID, -req.Amount, balance, reason)

	c.JSON(http.StatusOK, dto.CreditsResponse{
		UserID:        userID,
		CreditBalance: balance,
	})
}

// ReadCredits handles GET /api/credits/read-credits
// Returns the caller's balance. Admins may pass ?user_id= to inspect others.
func (h *CreditsHandler) ReadCredits(c *gin.Context) {
	userID := middleware.UserID(c)
	if target := c.Query("user_id"); target != "" && middleware.IsAdmin(c) {
		userID = target
	}

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}
		h.logger.Error("Failed to read credits",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read credits",
		})
		return
	}

	c.JSON(http.StatusOK, dto.CreditsResponse{
		UserID:        userID,
		CreditBalance: balance,
	})
}
