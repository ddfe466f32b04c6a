package service

import (
	"errors"

	"jotium-go/internal/tools"
)

var (
	// ErrInvalidInput 表示请求既没有文本也没有图片，或者缺少必要字段。
	ErrInvalidInput = errors.New("invalid input")
	// ErrModel 表示模型调用失败（网络、鉴权或服务端错误）。
	ErrModel = errors.New("model error")
	// ErrToolNotFound 表示模型请求了未注册的工具，可以用 errors.As 取出 *tools.NotFoundError。
	ErrToolNotFound = tools.ErrNotFound
)
