// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return def
}

// ParseID parses a positive decimal identifier such as a path parameter.
func ParseID(s string) (uint64, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// ParseIDList collects identifiers from form values. Each value may itself be
// a comma-separated list, so both "ids=1&ids=2" and "ids=1,2" work. Blank
// entries are skipped; the first malformed entry is returned with ok=false.
func ParseIDList(values []string) (ids []uint64, bad string, ok bool) {
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, valid := ParseID(part)
			if !valid {
				return nil, part, false
			}
			ids = append(ids, id)
		}
	}
	return ids, "", true
}
