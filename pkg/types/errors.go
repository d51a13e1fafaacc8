/*
 Copyright 2023 NanaFS Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("no record")
	ErrNameIllegal      = errors.New("name illegal")
	ErrNameTooLong      = errors.New("name too long")
	ErrNameConflict     = errors.New("name already in use")
	ErrExtensionBlocked = errors.New("file extension not allowed")
	ErrNotFolder        = errors.New("not folder")
	ErrCyclicTarget     = errors.New("target is the item itself or one of its descendants")
	ErrBusy             = errors.New("items busy, try again later")
	ErrNoAccess         = errors.New("no access")
	ErrNoPerm           = errors.New("no permission")
	ErrAmbiguous        = errors.New("path is ambiguous")
	ErrInvalidPath      = errors.New("invalid path")
	ErrSystem           = errors.New("system error")
	ErrUniqueName       = errors.New("unable to generate unique name")
	ErrConflict         = errors.New("operation conflict")
	ErrNotRoot          = errors.New("not a root item")
)

// ValidationError is surfaced to the caller and never retried.
type ValidationError struct {
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason.Error(), e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

func NewValidationError(reason error, format string, args ...interface{}) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// LockError is transient, it aggregates every lock that could not be taken.
type LockError struct {
	Names []string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("%s: %d lock(s) held by others [%s]", ErrBusy.Error(), len(e.Names), strings.Join(e.Names, ","))
}

func (e *LockError) Is(target error) bool {
	return target == ErrBusy
}

func NewLockError(names ...string) error {
	return &LockError{Names: names}
}

type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotFound.Error(), e.What)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NewNotFoundError(format string, args ...interface{}) error {
	return &NotFoundError{What: fmt.Sprintf(format, args...)}
}

// SystemError wraps an object store failure, it is fatal for the affected item.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrSystem.Error(), e.Op, e.Err)
}

func (e *SystemError) Unwrap() error {
	return e.Err
}

func (e *SystemError) Is(target error) bool {
	return target == ErrSystem
}

func NewSystemError(op string, err error) error {
	return &SystemError{Op: op, Err: err}
}

func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsSystem(err error) bool {
	return errors.Is(err, ErrSystem)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MergeLockErrors folds the busy names of several errors into one LockError.
// Non-lock errors are returned as is, the first one wins.
func MergeLockErrors(errs ...error) error {
	var names []string
	for _, err := range errs {
		if err == nil {
			continue
		}
		var le *LockError
		if errors.As(err, &le) {
			names = append(names, le.Names...)
			continue
		}
		return err
	}
	if len(names) == 0 {
		return nil
	}
	return NewLockError(names...)
}
