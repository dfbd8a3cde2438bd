// Package middleware contains the HTTP middleware of the admin API.
package middleware
