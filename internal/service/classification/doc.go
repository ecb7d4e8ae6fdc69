// Package classification serves the external classifier: it hands out valid
// records that have not been analysed yet and stores the verdicts that come
// back.
//
// The service layer depends only on the interfaces in repository.go. It never
// imports net/http or database/sql directly.
package classification
