// Package repository 提供了数据访问层的实现。
package repository

import "errors"

var (
	// ErrStoreUnavailable 表示一次瞬时的存储/网络故障。
	// 适配器内部不做重试，重试策略属于上层的同步协调器。
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound 表示请求的记录不存在。
	ErrNotFound = errors.New("record not found")
)
