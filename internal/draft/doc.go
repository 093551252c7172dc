// Package draft holds the project being filled in and the rules it must
// satisfy before it can be submitted.
package draft
