package backend

// GenerateRequest represents the request body for the text-generation-inference API
type GenerateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters GenerateParameters `json:"parameters"`
}

// GenerateParameters holds the sampling parameters of a generate call
type GenerateParameters struct {
	Temperature  float64 `json:"temperature"`
	MaxNewTokens int     `json:"max_new_tokens"`
}

// GenerateResponse represents the response from the text-generation-inference API
type GenerateResponse struct {
	GeneratedText string `json:"generated_text"`
}

// ErrorResponse is the body returned with a non-2xx status
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}
