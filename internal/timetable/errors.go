package timetable

import "errors"

var (
	ErrNotFound        = errors.New("timetable: not found")
	ErrInvalidArgument = errors.New("timetable: invalid argument")
)
