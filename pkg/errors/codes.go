package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeMessagingError     ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
)

// Chat Module Error Codes
const (
	ErrCodeChatPromptRequired ErrorCode = "CHAT_001"
	ErrCodeChatStreamAborted  ErrorCode = "CHAT_002"
	ErrCodeChatStreaming      ErrorCode = "CHAT_003"
)

// Vertex AI Error Codes
const (
	ErrCodeUpstreamStatus    ErrorCode = "UPSTREAM_001"
	ErrCodeUpstreamTransport ErrorCode = "UPSTREAM_002"
	ErrCodeUpstreamDecode    ErrorCode = "UPSTREAM_003"
	ErrCodeUpstreamConfig    ErrorCode = "UPSTREAM_004"
)

// Auth Error Codes
const (
	ErrCodeAuthTokenUnavailable ErrorCode = "AUTH_001"
	ErrCodeAuthGcloudMissing    ErrorCode = "AUTH_002"
	ErrCodeAuthGcloudTimeout    ErrorCode = "AUTH_003"
)

// Notebook Module Error Codes
const (
	ErrCodeNotebookNotFound      ErrorCode = "NOTEBOOK_001"
	ErrCodeNotebookInvalidFilter ErrorCode = "NOTEBOOK_002"
)

// Molecule Module Error Codes
const (
	ErrCodeMoleculeInvalidSMILES    ErrorCode = "MOLECULE_001"
	ErrCodeMoleculeNotFound         ErrorCode = "MOLECULE_002"
	ErrCodeSubstructureSearchFailed ErrorCode = "MOLECULE_003"
	ErrCodeSimilaritySearchFailed   ErrorCode = "MOLECULE_004"
	ErrCodeMoleculeSearchType       ErrorCode = "MOLECULE_005"
)

// Document Module Error Codes
const (
	ErrCodeDocumentNotFound    ErrorCode = "DOCUMENT_001"
	ErrCodeDocumentStorage     ErrorCode = "DOCUMENT_002"
	ErrCodeDocumentPresign     ErrorCode = "DOCUMENT_003"
	ErrCodeDocumentTagFailures ErrorCode = "DOCUMENT_004"
)

// Short aliases used at call sites.
const (
	CodeOK      = ErrorCode("OK")
	CodeUnknown = ErrorCode("UNKNOWN")

	CodeInternal           = ErrCodeInternal
	CodeInvalidParam       = ErrCodeBadRequest
	CodeUnauthorized       = ErrCodeUnauthorized
	CodeForbidden          = ErrCodeForbidden
	CodeNotFound           = ErrCodeNotFound
	CodeConflict           = ErrCodeConflict
	CodeRateLimit          = ErrCodeTooManyRequests
	CodeServiceUnavailable = ErrCodeServiceUnavailable
	CodeTimeout            = ErrCodeTimeout
	CodeDatabaseError      = ErrCodeDatabaseError
	CodeCacheError         = ErrCodeCacheError

	CodePromptRequired    = ErrCodeChatPromptRequired
	CodeUpstreamStatus    = ErrCodeUpstreamStatus
	CodeUpstreamTransport = ErrCodeUpstreamTransport
	CodeUpstreamDecode    = ErrCodeUpstreamDecode
	CodeNotebookNotFound  = ErrCodeNotebookNotFound
	CodeMoleculeNotFound  = ErrCodeMoleculeNotFound
	CodeDocumentNotFound  = ErrCodeDocumentNotFound
)

// ErrorCodeHTTPStatus maps each ErrorCode to its HTTP status.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	CodeOK:                    http.StatusOK,
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,
	ErrCodeFeatureDisabled:    http.StatusServiceUnavailable,

	ErrCodeChatPromptRequired: http.StatusBadRequest,
	ErrCodeChatStreamAborted:  499,
	ErrCodeChatStreaming:      http.StatusInternalServerError,

	ErrCodeUpstreamStatus:    http.StatusBadGateway,
	ErrCodeUpstreamTransport: http.StatusBadGateway,
	ErrCodeUpstreamDecode:    http.StatusBadGateway,
	ErrCodeUpstreamConfig:    http.StatusInternalServerError,

	ErrCodeAuthTokenUnavailable: http.StatusBadGateway,
	ErrCodeAuthGcloudMissing:    http.StatusBadGateway,
	ErrCodeAuthGcloudTimeout:    http.StatusGatewayTimeout,

	ErrCodeNotebookNotFound:      http.StatusNotFound,
	ErrCodeNotebookInvalidFilter: http.StatusBadRequest,

	ErrCodeMoleculeInvalidSMILES:    http.StatusBadRequest,
	ErrCodeMoleculeNotFound:         http.StatusNotFound,
	ErrCodeSubstructureSearchFailed: http.StatusInternalServerError,
	ErrCodeSimilaritySearchFailed:   http.StatusInternalServerError,
	ErrCodeMoleculeSearchType:       http.StatusBadRequest,

	ErrCodeDocumentNotFound:    http.StatusNotFound,
	ErrCodeDocumentStorage:     http.StatusBadGateway,
	ErrCodeDocumentPresign:     http.StatusInternalServerError,
	ErrCodeDocumentTagFailures: http.StatusInternalServerError,
}

// ErrorCodeMessage holds the default message for each ErrorCode.
var ErrorCodeMessage = map[ErrorCode]string{
	CodeOK:                    "ok",
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeMessagingError:     "messaging error",
	ErrCodeFeatureDisabled:    "feature disabled",

	ErrCodeChatPromptRequired: "Prompt is required",
	ErrCodeChatStreamAborted:  "chat stream aborted",
	ErrCodeChatStreaming:      "chat streaming failed",

	ErrCodeUpstreamStatus:    "vertex ai request failed",
	ErrCodeUpstreamTransport: "vertex ai unreachable",
	ErrCodeUpstreamDecode:    "vertex ai response could not be decoded",
	ErrCodeUpstreamConfig:    "vertex ai is not configured",

	ErrCodeAuthTokenUnavailable: "unable to authenticate with Google Cloud",
	ErrCodeAuthGcloudMissing:    "gcloud CLI not found",
	ErrCodeAuthGcloudTimeout:    "gcloud command timed out",

	ErrCodeNotebookNotFound:      "notebook not found",
	ErrCodeNotebookInvalidFilter: "invalid notebook filter",

	ErrCodeMoleculeInvalidSMILES:    "invalid SMILES",
	ErrCodeMoleculeNotFound:         "molecule not found",
	ErrCodeSubstructureSearchFailed: "substructure search failed",
	ErrCodeSimilaritySearchFailed:   "similarity search failed",
	ErrCodeMoleculeSearchType:       "unsupported molecule search type",

	ErrCodeDocumentNotFound:    "document not found",
	ErrCodeDocumentStorage:     "document storage error",
	ErrCodeDocumentPresign:     "failed to sign document url",
	ErrCodeDocumentTagFailures: "some documents could not be tagged",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
