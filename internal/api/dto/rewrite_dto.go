package dto

type SubmitRewriteRequest struct {
	UserResume string `json:"user_resume" binding:"required"`
	JD         string `json:"jd" binding:"required"`
}

type SubmitDraftRequest struct {
	JD1 string `json:"jd1" binding:"required"`
	JD2 string `json:"jd2" binding:"required"`
	JD3 string `json:"jd3" binding:"required"`
}

type SubmitJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
