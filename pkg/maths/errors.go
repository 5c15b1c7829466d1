package maths

import "github.com/pkg/errors"

/*
该文件定义整个识别核心共享的错误类别
上层模块统一用 errors.Wrapf 包装这些哨兵错误，调用方用 errors.Is 判断类别
*/

var (
	// ErrDimensionMismatch 运算对象尺寸不一致（算术、recall、训练）
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidArgument 参数超出范围，例如 K>M
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConvergence 特征值求解器未收敛
	ErrConvergence = errors.New("eigensolver did not converge")
	// ErrEmptySet 在空样本集上计算误差
	ErrEmptySet = errors.New("empty pattern set")
	// ErrIO 持久化文件格式错误或被截断
	ErrIO = errors.New("malformed or truncated data")
)

// dimensionPanic 形状错误属于调用方的 bug，直接 panic
func dimensionPanic(format string, args ...interface{}) {
	panic(errors.Wrapf(ErrDimensionMismatch, format, args...))
}
