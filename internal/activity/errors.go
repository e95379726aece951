package activity

import "errors"

var (
	// ErrMalformedRecord структурная ошибка при декодировании: обрезанный буфер,
	// неизвестная версия формата, счётчики длиннее оставшихся данных
	ErrMalformedRecord = errors.New("malformed chunk activity record")

	// ErrIO ошибка чтения/записи хранилища
	ErrIO = errors.New("chunk activity io failure")

	// ErrCompression повреждённый gzip-поток
	ErrCompression = errors.New("chunk activity compression failure")
)
