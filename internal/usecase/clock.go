package usecase

import "time"

// テストで時間を差し替えるための約束
type Clock interface {
	Now() time.Time
}
