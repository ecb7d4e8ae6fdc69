// Package httputil holds the JSON response and request helpers shared by the
// intake API handlers, so every endpoint answers with the same envelope.
package httputil
