// Package enrich turns an upstream people-match reply into the reply sent back
// to the caller.
//
// A successful reply whose body is a JSON object gets an "extra" member with
// a 4-space indented copy of the original body and the first sanitized phone
// number found under person.phone_numbers. Every other reply is passed through
// byte for byte. Response headers are reduced to x-* and Content-Type and
// always carry the middleman marker.
package enrich
