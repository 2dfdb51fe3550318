package dto

type VerifyRequest struct {
	Key  string `json:"key" binding:"required"`
	Hwid string `json:"hwid" binding:"required"`
}

type VerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}
