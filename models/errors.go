package models

import "errors"

// Tipos de falha do pipeline de scan. Erros de escopo de arquivo nunca abortam o scan.
var (
	ErrInvalidURL            = errors.New("invalid_url")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrRateLimited           = errors.New("rate_limited")
	ErrRepositoryUnavailable = errors.New("repository_unavailable")
	ErrFileFetchFailed       = errors.New("file_fetch_failed")
	ErrAnalysisParseFailed   = errors.New("analysis_parse_failed")
	ErrPersistenceFailed     = errors.New("persistence_failed")
)

// ErrorKind devolve o identificador curto do erro para respostas da API.
func ErrorKind(err error) string {
	for _, k := range []error{
		ErrInvalidURL,
		ErrUnauthenticated,
		ErrRateLimited,
		ErrRepositoryUnavailable,
		ErrFileFetchFailed,
		ErrAnalysisParseFailed,
		ErrPersistenceFailed,
	} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal_error"
}
