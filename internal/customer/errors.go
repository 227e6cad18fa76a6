package customer

import "errors"

var (
	// ErrCustomerNotFound indicates the customer does not exist for the tenant.
	ErrCustomerNotFound = errors.New("customer not found")
)
