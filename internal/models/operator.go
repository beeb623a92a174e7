package models

import "github.com/golang-jwt/jwt/v5"

// OperatorClaims is the payload of an operator access token for the runs API.
type OperatorClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// ScopeRuns grants submitting and reading course runs.
const ScopeRuns = "runs"
