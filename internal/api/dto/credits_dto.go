package dto

type AddCreditsRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Amount int    `json:"amount" binding:"required,gt=0"`
	Reason string `json:"reason"`
}

type UseCreditsRequest struct {
	Amount int    `json:"amount" binding:"required,gt=0"`
	Reason string `json:"reason"`
}

type CreditsResponse struct {
	UserID        string `json:"user_id"`
	CreditBalance int    `json:"credit_balance"`
}
