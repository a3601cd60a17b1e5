package upload

// IsSuccessStatus reports whether the backend accepted the upload.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

// IsRetryableStatus classifies server statuses where a manual resubmit has
// a realistic chance of succeeding.
func IsRetryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
