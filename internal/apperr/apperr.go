// Package apperr holds the error taxonomy shared by the engine, the
// identity provider and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrOrderNotFeasible  = errors.New("order not feasible due to resource constraints")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotPending        = errors.New("only pending orders can be modified")
	ErrConflict          = errors.New("conflict")
	ErrBadRequest        = errors.New("bad request")
	ErrInternal          = errors.New("internal error")
)

type Category string

const (
	CategoryBadRequest   Category = "bad_request"
	CategoryUnauthorized Category = "unauthorized"
	CategoryForbidden    Category = "forbidden"
	CategoryNotFound     Category = "not_found"
	CategoryConflict     Category = "conflict"
	CategoryServerError  Category = "server_error"
)

// order matters: ErrOrderNotFeasible wraps ErrInsufficientStock.
var categories = []struct {
	err error
	cat Category
}{
	{ErrUnauthorized, CategoryUnauthorized},
	{ErrForbidden, CategoryForbidden},
	{ErrNotFound, CategoryNotFound},
	{ErrOrderNotFeasible, CategoryBadRequest},
	{ErrInsufficientStock, CategoryBadRequest},
	{ErrNotPending, CategoryBadRequest},
	{ErrBadRequest, CategoryBadRequest},
	{ErrConflict, CategoryConflict},
}

// CategoryOf classifies err. Anything outside the taxonomy is a server error.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInternal) {
		return CategoryServerError
	}
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.cat
		}
	}
	return CategoryServerError
}

// Known reports whether err belongs to the client-facing taxonomy.
func Known(err error) bool {
	return CategoryOf(err) != CategoryServerError
}

func HTTPStatus(c Category) int {
	switch c {
	case CategoryBadRequest:
		return http.StatusBadRequest
	case CategoryUnauthorized:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
