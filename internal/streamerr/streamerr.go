// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package streamerr defines the closed error taxonomy shared by every layer
// of the stream backend, so callers can test against a kind instead of
// matching strings.
package streamerr

import "github.com/zeebo/errs"

// Classes, one per error kind. Wrap an underlying cause with the class's
// own Wrap method (e.g. Unavailable.Wrap) to preserve it while still
// classifying under one of these.
var (
	NotFound              = errs.Class("not_found")
	AlreadyExists         = errs.Class("already_exists")
	InvalidArgument       = errs.Class("invalid_argument")
	WrongSeq              = errs.Class("wrong_seq")
	NonMonotonicTimestamp = errs.Class("non_monotonic_timestamp")
	Unavailable           = errs.Class("unavailable")
	Aborted               = errs.Class("aborted")
	Corrupt               = errs.Class("corrupt")
	Internal              = errs.Class("internal")
)

// Kind is one of the nine taxonomy members above, usable for dispatch
// without string comparison.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidArgument
	KindWrongSeq
	KindNonMonotonicTimestamp
	KindUnavailable
	KindAborted
	KindCorrupt
	KindInternal
)

var classesByKind = [...]*errs.Class{
	KindNotFound:              &NotFound,
	KindAlreadyExists:         &AlreadyExists,
	KindInvalidArgument:       &InvalidArgument,
	KindWrongSeq:              &WrongSeq,
	KindNonMonotonicTimestamp: &NonMonotonicTimestamp,
	KindUnavailable:           &Unavailable,
	KindAborted:               &Aborted,
	KindCorrupt:               &Corrupt,
	KindInternal:              &Internal,
}

// KindOf reports which taxonomy member err was raised from, or KindUnknown
// if it was not raised through one of this package's classes.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for k, class := range classesByKind {
		if k == int(KindUnknown) {
			continue
		}
		if class.Has(err) {
			return Kind(k)
		}
	}
	return KindUnknown
}

// String renders a Kind for logging.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindWrongSeq:
		return "wrong_seq"
	case KindNonMonotonicTimestamp:
		return "non_monotonic_timestamp"
	case KindUnavailable:
		return "unavailable"
	case KindAborted:
		return "aborted"
	case KindCorrupt:
		return "corrupt"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}
