/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package validator resolves column names, function names, and
// partition/time predicates against dataset metadata and the live ShardMap
// (§4.1). It is pure and synchronous; every input produces either a resolved
// value or one of these categorized errors — it never panics.
package validator

import "fmt"

// Error is the validator's categorized failure taxonomy (§7). Kind
// distinguishes the category for callers that need to branch on it (e.g. the
// router deciding BadQuery vs BadArgument wire framing); Error() renders a
// human-readable message.
type Error struct {
	Kind    Kind
	Message string
	// Given/Expected are populated only for Kind == WrongArity, so callers
	// (router's wire-error mapping) can surface WrongNumberOfArgs(given,
	// expected) without re-parsing Message.
	Given, Expected int
}

// Kind enumerates the validator's error categories.
type Kind int

const (
	UnknownColumn Kind = iota
	NoSuchFunction
	WrongArity
	BadArgument
	NoTimestampColumn
	ShardNotActive
)

func (e *Error) Error() string { return e.Message }

func errUnknownColumn(name string) *Error {
	return &Error{Kind: UnknownColumn, Message: fmt.Sprintf("UnknownColumn(%s)", name)}
}

func errNoSuchFunction(name string) *Error {
	return &Error{Kind: NoSuchFunction, Message: fmt.Sprintf("No such aggregation function %s", name)}
}

func errWrongArity(given, expected int) *Error {
	return &Error{Kind: WrongArity, Message: fmt.Sprintf("wrong number of arguments: given %d, expected %d", given, expected), Given: given, Expected: expected}
}

func errBadArgument(reason string) *Error {
	return &Error{Kind: BadArgument, Message: reason}
}

func errNoTimestampColumn() *Error {
	return &Error{Kind: NoTimestampColumn, Message: "dataset has no timestamp column"}
}

func errShardNotActive(shard any) *Error {
	return &Error{Kind: ShardNotActive, Message: fmt.Sprintf("shard %v is not Active", shard)}
}
