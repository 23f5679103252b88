package cpm

import "errors"

var (
	// ErrOutOfCapacity is returned by Register when the client table is full
	ErrOutOfCapacity = errors.New("clock client table is full")
	// ErrInvalidHandle is returned for handles this Manager never issued
	ErrInvalidHandle = errors.New("invalid clock client handle")
)
