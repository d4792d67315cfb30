package repository

import "errors"

// 見つからないときの共通エラー
var ErrNotFound = errors.New("not found")
