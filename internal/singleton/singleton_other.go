//go:build !windows
// +build !windows

package singleton

// Mutex 非Windows平台的占位实现
type Mutex struct{}

// Close 释放互斥锁（非Windows平台无操作）
func (m *Mutex) Close() error {
	return nil
}

// EnsureSingleInstance 确保只有一个实例运行（非Windows平台暂不检测）
func EnsureSingleInstance(appName string) (*Mutex, error) {
	// 非Windows平台暂不做单实例检测
	return &Mutex{}, nil
}
