package dtos

// ValidationErrorDetail is one failed field of a request body.
type ValidationErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}
