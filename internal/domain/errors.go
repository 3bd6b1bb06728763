package domain

import "errors"

var (
	// ErrMalformedInput means the declared file type's reader could not parse the file.
	ErrMalformedInput = errors.New("failed to parse file")

	// ErrNoValidRecords means parsing succeeded but every row was dropped.
	ErrNoValidRecords = errors.New("no valid transactions found")

	// ErrUnsupportedFileType is returned for extensions other than .xlsx and .csv.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	ErrNotFound           = errors.New("record not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrQuotaExceeded      = errors.New("upload quota exceeded")
)
