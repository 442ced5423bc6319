package oai

// errorTypeFor maps an ir.Kind-driven status to the OAI "type" field used
// in unary error bodies. Kept tiny and open-coded rather than a lookup
// table shared with OLL since the two dialects' vocabularies differ.
func errorTypeFor(statusCode int) string {
	switch {
	case statusCode == 429:
		return "rate_limit_error"
	case statusCode >= 500:
		return "api_error"
	case statusCode >= 400:
		return "invalid_request_error"
	default:
		return "api_error"
	}
}

// EncodeErrorForStatus renders an OAI unary error body appropriate for
// the given upstream/validation status code.
func EncodeErrorForStatus(statusCode int, message string) []byte {
	return EncodeError(message, errorTypeFor(statusCode))
}
