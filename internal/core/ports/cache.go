package ports

// ScanCache is a process-local key-value store without expiration, used for
// tracked-identity membership checks while scanning blocks.
type ScanCache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Has(key string) bool
	Del(key string)
	Len() int
}
