package services

//go:generate go tool mockgen -destination=./mocks/backend_mock.go -package=mocks . Backend

// Backend 分片持久化接口，由 storage.Storage 实现
type Backend interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Delete(keys ...string) error
}
