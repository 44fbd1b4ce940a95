package postgresql

import (
	"errors"

	"github.com/lib/pq"
)

const (
	foreignKeyViolation = pq.ErrorCode("23503")
	uniqueViolation     = pq.ErrorCode("23505")
)

func isPQError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == code
}
