package ports

import "time"

// Policy controls the writer's buffering between the bus and the store.
type Policy struct {
	MaxQueueLen  int           `yaml:"max_queue_len"`
	MaxBatchSize int           `yaml:"max_batch_size"`
	IdleSleep    time.Duration `yaml:"idle_sleep"`

	OnQueueFull string `yaml:"on_queue_full" validate:"omitempty,oneof=drop drop_oldest block"` // "drop", "drop_oldest", "block"
}
