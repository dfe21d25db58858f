package usecase

import (
	"errors"
	"fmt"
)

// HTTPErrorはhandlerでそのままステータスとメッセージに変換する。
// Detailsは複数の理由を返すときに使う（チェックアウト不可の理由など）。
type HTTPError struct {
	Status  int
	Message string
	Details []string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func NewHTTPErrorWithDetails(status int, message string, details []string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
		Details: details,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}
