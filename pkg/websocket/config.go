package websocket

import "time"

// Config 设备通道配置
type Config struct {
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 连接超时时间（此间隔内无 pong 则断开）
	ConnectionTimeout time.Duration
	// 发送缓冲区大小
	MessageBufferSize int
	// 读缓冲区大小
	ReadBufferSize int
	// 写缓冲区大小
	WriteBufferSize int
	// 单条消息大小上限
	MaxMessageSize int64
	// 是否启用压缩
	EnableCompression bool
	// 发送缓冲区满时丢弃而不是阻塞
	DropOnFull bool
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: 60 * time.Second,
		MessageBufferSize: 64,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		MaxMessageSize:    4096,
		EnableCompression: false,
		DropOnFull:        true,
	}
}
