package ptz

import (
	"errors"
	"fmt"
)

// FaultClass separates device errors the caller may retry later from
// ones that will not heal on their own.
type FaultClass string

const (
	// FaultTransient covers timeouts and temporary unreachability. The
	// motion governor answers these with a cooldown, never an immediate
	// retry.
	FaultTransient FaultClass = "transient"

	// FaultPermanent covers authentication and unsupported-operation
	// errors. Motion stops; tracking continues.
	FaultPermanent FaultClass = "permanent"
)

// Fault is a classified device error.
type Fault struct {
	Class FaultClass
	Op    string // Device operation that failed
	Err   error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("ptz %s: %s fault: %v", f.Op, f.Class, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Transient wraps err as a transient fault for the named operation.
func Transient(op string, err error) *Fault {
	return &Fault{Class: FaultTransient, Op: op, Err: err}
}

// Permanent wraps err as a permanent fault for the named operation.
func Permanent(op string, err error) *Fault {
	return &Fault{Class: FaultPermanent, Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a transient fault.
func IsTransient(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.Class == FaultTransient
}

// IsPermanent reports whether err is (or wraps) a permanent fault.
func IsPermanent(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.Class == FaultPermanent
}
