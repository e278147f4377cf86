package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/storefront-inventory-service/internal/http/response"
	"github.com/sandeepkv93/storefront-inventory-service/internal/repository"
	"github.com/sandeepkv93/storefront-inventory-service/internal/service"
)

const storageRetryAfter = time.Second

var errInvalidPathID = errors.New("invalid id")

// parsePathID accepts only a positive base-10 integer with no sign or suffix.
func parsePathID(input string) (uint, error) {
	input = strings.TrimSpace(input)
	if input == "" || input[0] == '+' {
		return 0, errInvalidPathID
	}
	n, err := strconv.ParseUint(input, 10, 32)
	if err != nil || n == 0 {
		return 0, errInvalidPathID
	}
	return uint(n), nil
}

// writeServiceError maps the error kinds shared by every product route. It
// reports false when err matched nothing and the caller must decide.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) bool {
	var (
		vErr       *service.ValidationError
		storageErr *repository.StorageError
	)
	switch {
	case errors.As(err, &vErr):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", vErr.Error(), map[string]string{"field": vErr.Field})
	case errors.Is(err, repository.ErrProductNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
	case errors.Is(err, repository.ErrProductConflict):
		response.Error(w, r, http.StatusConflict, "CONFLICT", "product already exists", nil)
	case errors.Is(err, repository.ErrProductConstraint):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "product violates catalog constraints", nil)
	case errors.As(err, &storageErr) && storageErr.Ambiguous:
		response.Error(w, r, http.StatusInternalServerError, "OUTCOME_UNKNOWN", "the outcome of the operation is unknown", nil)
	case errors.As(err, &storageErr):
		response.SetRetryAfter(w, storageRetryAfter)
		response.Error(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "storage temporarily unavailable", nil)
	default:
		return false
	}
	return true
}
