// Copyright 2025 Google LLC
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

// Package errlist collects errors raised while compiling a module.
package errlist

import (
	"go.uber.org/multierr"
)

// List is a set of errors collected during a compilation.
// The zero value is an empty list ready to use.
type List struct {
	errs []error
}

// Append an error to the list. Appending nil is a no-op.
// Always returns false so that callers can write:
//
//	return list.Append(err)
func (l *List) Append(err error) bool {
	if err == nil {
		return false
	}
	l.errs = append(l.errs, err)
	return false
}

// Empty returns true if no error has been collected.
func (l *List) Empty() bool {
	return l == nil || len(l.errs) == 0
}

// Errors returns all collected errors.
func (l *List) Errors() []error {
	if l == nil {
		return nil
	}
	return append([]error{}, l.errs...)
}

// ToError flattens the list into a single error,
// or nil if the list is empty.
func (l *List) ToError() error {
	if l.Empty() {
		return nil
	}
	return multierr.Combine(l.errs...)
}
