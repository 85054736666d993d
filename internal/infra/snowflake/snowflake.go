package snowflake

import (
	"sync"

	bwsnowflake "github.com/bwmarrin/snowflake"
)

// 全局唯一ID生成器
// 多实例部署时每个实例必须使用不同的节点ID，否则ID会撞车

var (
	node    *bwsnowflake.Node
	once    sync.Once
	initErr error
)

// Init 指定节点ID初始化（0-1023），main 启动时调用一次
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = bwsnowflake.NewNode(nodeID)
	})
	return initErr
}

// NextID 生成一个全局唯一ID
// 未显式 Init 时退化为节点1（仅限单实例/本地调试）
func NextID() int64 {
	once.Do(func() {
		node, initErr = bwsnowflake.NewNode(1)
	})
	if node == nil {
		panic(initErr)
	}
	return node.Generate().Int64()
}

// NextString 生成字符串形式的全局唯一ID
func NextString() string {
	once.Do(func() {
		node, initErr = bwsnowflake.NewNode(1)
	})
	if node == nil {
		panic(initErr)
	}
	return node.Generate().String()
}
