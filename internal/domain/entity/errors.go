package entity

import "errors"

// Ошибки ядра. Проверяются через errors.Is, конкретика добавляется обёрткой %w.
var (
	ErrDecode       = errors.New("image decode failed")
	ErrInvalidImage = errors.New("invalid image")

	ErrWeightsNotFound = errors.New("weights file not found")
	ErrWeightsEmpty    = errors.New("weights file is empty")
	ErrWeightsFormat   = errors.New("weights file has unexpected format")
	ErrWeightsLoad     = errors.New("weights load failed")

	ErrShapeMismatch  = errors.New("tensor shape mismatch")
	ErrModelNotLoaded = errors.New("model is not loaded")
)
