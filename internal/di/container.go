package di

import (
	"go.uber.org/dig"
)

// Container 全局依赖注入容器
// 检索管道的组件（队列、嵌入器、向量存储、工作池、各服务）
// 都在此注册，控制器在 Prepare 阶段从这里解析所需服务。
var Container *dig.Container

// InitContainer 初始化容器，bootstrap 启动时调用一次
func InitContainer() *dig.Container {
	Container = dig.New()
	return Container
}

// GetContainer 获取容器实例
func GetContainer() *dig.Container {
	return Container
}

// Invoke 从容器解析依赖并调用函数
func Invoke(function interface{}, opts ...dig.InvokeOption) error {
	return Container.Invoke(function, opts...)
}

// Provide 向容器注册构造函数
func Provide(constructor interface{}, opts ...dig.ProvideOption) error {
	return Container.Provide(constructor, opts...)
}
