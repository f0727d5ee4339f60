package errors

import "errors"

// ErrNoRowsAffected 条件更新未命中任何记录（目标不存在）
var ErrNoRowsAffected = errors.New("未找到要更新的记录")

// ErrMultipleRows 期望至多一行，实际查询到多行
var ErrMultipleRows = errors.New("查询结果多于一行")
